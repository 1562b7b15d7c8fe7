package gen

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eunmann/txagg/pkg/scan"
	"github.com/eunmann/txagg/pkg/source"
)

func mustNew(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		errRate float64
		dupRate float64
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"bounds", 1, 1, false},
		{"mid", 0.1, 0.25, false},
		{"negative error", -0.1, 0, true},
		{"error above one", 1.5, 0, true},
		{"duplicate above one", 0, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ErrorRate, cfg.DuplicateRate = tt.errRate, tt.dupRate
			err := cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRate) {
				t.Errorf("err = %v, want ErrInvalidRate", err)
			}
		})
	}
}

func TestValidRows(t *testing.T) {
	g := mustNew(t, DefaultConfig())
	start := DefaultConfig().Start
	end := start.Add(366 * 24 * time.Hour)

	for i := 0; i < 2000; i++ {
		tx := g.Next()
		if tx.Fuzzed != FieldNone {
			t.Fatalf("row %d fuzzed with zero error rate", i)
		}

		if len(tx.ID) != 20 || strings.Trim(tx.ID, "0123456789") != "" {
			t.Fatalf("bad id %q", tx.ID)
		}

		rec, err := scan.ParseLine(bytes.TrimSuffix(tx.AppendCSV(nil), []byte("\n")))
		if err != nil {
			t.Fatalf("row %d does not parse: %v", i, err)
		}
		if rec.Key < 1 || rec.Key > 9999 {
			t.Fatalf("user %d out of range", rec.Key)
		}
		if rec.Value < 1 || rec.Value > 100000 {
			t.Fatalf("amount %v out of range", rec.Value)
		}
		if dot := strings.IndexByte(tx.Amount, '.'); dot < 0 || len(tx.Amount)-dot != 3 {
			t.Fatalf("amount %q should have two decimals", tx.Amount)
		}

		ts, err := time.Parse(DateLayout, tx.Date)
		if err != nil {
			t.Fatalf("date %q: %v", tx.Date, err)
		}
		if ts.Before(start) || !ts.Before(end) {
			t.Fatalf("date %s outside [%s, %s)", ts, start, end)
		}
	}
}

func TestDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.ErrorRate = 0.3
	cfg.DuplicateRate = 0.2

	a, b := mustNew(t, cfg), mustNew(t, cfg)
	for i := 0; i < 500; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("row %d differs: %+v vs %+v", i, x, y)
		}
	}
}

func TestDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DuplicateRate = 1
	g := mustNew(t, cfg)

	first := g.Next()
	for i := 0; i < 100; i++ {
		if tx := g.Next(); tx != first {
			t.Fatalf("row %d = %+v, want repeat of %+v", i, tx, first)
		}
	}
}

func TestFuzzedRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ErrorRate = 1
	g := mustNew(t, cfg)

	seen := make(map[Field]int)
	for i := 0; i < 1000; i++ {
		tx := g.Next()
		seen[tx.Fuzzed]++

		var value string
		var table []string
		switch tx.Fuzzed {
		case FieldID:
			value, table = tx.ID, stringFuzz
		case FieldUser:
			value, table = tx.User, numberFuzz
		case FieldAmount:
			value, table = tx.Amount, numberFuzz
		case FieldDate:
			value, table = tx.Date, dateFuzz
		default:
			t.Fatalf("row %d not fuzzed with error rate 1", i)
		}
		if !slices.Contains(table, value) {
			t.Fatalf("row %d: %s value %q is not a fuzz value", i, tx.Fuzzed, value)
		}
	}

	for _, f := range []Field{FieldID, FieldUser, FieldAmount, FieldDate} {
		if seen[f] == 0 {
			t.Errorf("column %s was never fuzzed", f)
		}
	}
}

func TestWriteFile(t *testing.T) {
	const target = 256 << 10
	path := filepath.Join(t.TempDir(), "tx.csv")

	stats, err := mustNew(t, DefaultConfig()).WriteFile(path, target)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(data)) != stats.Bytes {
		t.Errorf("file is %d bytes, stats say %d", len(data), stats.Bytes)
	}
	if stats.Bytes > target || stats.Bytes < target-100 {
		t.Errorf("size %d not just under target %d", stats.Bytes, target)
	}
	if !bytes.HasPrefix(data, []byte(Header)) {
		t.Error("missing header")
	}
	if data[len(data)-1] != '\n' {
		t.Error("last row is not newline terminated")
	}

	sc := scan.New(data[len(Header):])
	for sc.Scan() {
	}
	if sc.Valid() != stats.Rows || sc.Malformed() != 0 {
		t.Errorf("scanned %d valid %d malformed, want %d valid", sc.Valid(), sc.Malformed(), stats.Rows)
	}
}

func TestWriteFileCompressed(t *testing.T) {
	dir := t.TempDir()
	const target = 64 << 10

	plain := filepath.Join(dir, "tx.csv")
	if _, err := mustNew(t, DefaultConfig()).WriteFile(plain, target); err != nil {
		t.Fatal(err)
	}
	want, err := os.ReadFile(plain)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"tx.csv.gz", "tx.csv.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if _, err := mustNew(t, DefaultConfig()).WriteFile(path, target); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			src, err := source.OpenFile(context.Background(), path, source.Options{})
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer src.Close()
			if !bytes.Equal(src.Bytes(), want) {
				t.Error("decompressed content differs from the plain file")
			}
		})
	}
}

func TestWriteFileTargetTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.csv")
	if _, err := mustNew(t, DefaultConfig()).WriteFile(path, 10); err == nil {
		t.Error("expected error for a target smaller than the header")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be left behind")
	}
}

type collectEmitter struct {
	lines  []string
	limit  int
	cancel context.CancelFunc
}

func (c *collectEmitter) Emit(_ context.Context, line []byte) error {
	c.lines = append(c.lines, string(line))
	if len(c.lines) == c.limit {
		c.cancel()
	}
	return nil
}

type failEmitter struct{ after int }

func (f *failEmitter) Emit(context.Context, []byte) error {
	if f.after == 0 {
		return errors.New("connection closed")
	}
	f.after--
	return nil
}

func TestStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &collectEmitter{limit: 50, cancel: cancel}
	sent, err := Stream(ctx, mustNew(t, DefaultConfig()), e, 0)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sent != 50 || len(e.lines) != 50 {
		t.Errorf("sent %d lines, collected %d, want 50", sent, len(e.lines))
	}
	for _, l := range e.lines {
		if _, err := scan.ParseLine([]byte(strings.TrimSuffix(l, "\n"))); err != nil {
			t.Fatalf("streamed line %q: %v", l, err)
		}
	}
}

func TestStreamWithDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	sent, err := Stream(ctx, mustNew(t, DefaultConfig()), WriterEmitter{W: &buf}, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sent == 0 {
		t.Error("expected some lines before the deadline")
	}
	if got := int64(strings.Count(buf.String(), "\n")); got != sent {
		t.Errorf("wrote %d lines, reported %d", got, sent)
	}
}

func TestStreamEmitterFailure(t *testing.T) {
	sent, err := Stream(context.Background(), mustNew(t, DefaultConfig()), &failEmitter{after: 3}, 0)
	if err == nil || !strings.Contains(err.Error(), "connection closed") {
		t.Fatalf("err = %v, want emitter failure", err)
	}
	if sent != 3 {
		t.Errorf("sent = %d, want 3", sent)
	}
	if !strings.Contains(err.Error(), "line "+strconv.Itoa(4)) {
		t.Errorf("error %q should name the failed line", err)
	}
}
