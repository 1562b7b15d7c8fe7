package scan

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Record
		wantErr error
	}{
		{"12345678901234567890,42,10.00,2024-01-01 00:00:00", Record{42, 10}, nil},
		{"id,7,5.50,2024-06-30 12:00:00\r", Record{7, 5.5}, nil},
		{"id,-3,-1.25,d", Record{-3, -1.25}, nil},
		{"id,+3,2,d", Record{3, 2}, nil},
		{"id,-0,0,d", Record{0, 0}, nil},
		{"id,9007199254740993,1,d", Record{9007199254740993, 1}, nil},
		{"id,9223372036854775807,1,d", Record{math.MaxInt64, 1}, nil},
		{"id,-9223372036854775808,1,d", Record{math.MinInt64, 1}, nil},
		{"id,1,0.30000000000000004,d", Record{1, 0.30000000000000004}, nil},
		{"id,1,0.5,d", Record{1, 0.5}, nil},
		{"id,1,-0,d", Record{1, 0}, nil},
		{"id,1,1," + strings.Repeat("a", 10000), Record{1, 1}, nil},
		{"id,1,1,,,extra,fields", Record{1, 1}, nil},

		{"", Record{}, ErrTooFewFields},
		{"id,1,1.0", Record{}, ErrTooFewFields},
		{"no commas at all", Record{}, ErrTooFewFields},
		{"id,,1.0,d", Record{}, ErrInvalidKey},
		{"id,abc,1.0,d", Record{}, ErrInvalidKey},
		{"id,1.5,1.0,d", Record{}, ErrInvalidKey},
		{"id,inf,1.0,d", Record{}, ErrInvalidKey},
		{"id,-,1.0,d", Record{}, ErrInvalidKey},
		{"id,18446744073709551616,1.0,d", Record{}, ErrInvalidKey},
		{"id,9223372036854775808,1.0,d", Record{}, ErrInvalidKey},
		{"id,-9223372036854775809,1.0,d", Record{}, ErrInvalidKey},
		{"id, 1,1.0,d", Record{}, ErrInvalidKey},
		{"id,1,,d", Record{}, ErrInvalidValue},
		{"id,1,NULL,d", Record{}, ErrInvalidValue},
		{"id,1,12.5x,d", Record{}, ErrInvalidValue},
		{"id,1,\x00\x01,d", Record{}, ErrInvalidValue},
		{"id,1,0x1p4,d", Record{}, ErrInvalidValue},
		{"id,1,-0X1.8p1,d", Record{}, ErrInvalidValue},
		{"id,1,0x_1p0,d", Record{}, ErrInvalidValue},
	}

	for _, tt := range tests {
		got, err := ParseLine([]byte(tt.line))
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseLine(%.40q) err = %v, want %v", tt.line, err, tt.wantErr)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("ParseLine(%.40q) err = %v does not wrap ErrMalformed", tt.line, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLine(%.40q) unexpected error: %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLine(%.40q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseLineNumericEdgeCases(t *testing.T) {
	tests := []struct {
		value string
		check func(float64) bool
	}{
		{"inf", func(v float64) bool { return math.IsInf(v, 1) }},
		{"-inf", func(v float64) bool { return math.IsInf(v, -1) }},
		{"nan", math.IsNaN},
		{"1e308", func(v float64) bool { return v == 1e308 }},
		{"1e-308", func(v float64) bool { return v == 1e-308 }},
		{"-0", func(v float64) bool { return v == 0 && math.Signbit(v) }},
		{"1e400", func(v float64) bool { return math.IsInf(v, 1) }},
		{"-1e400", func(v float64) bool { return math.IsInf(v, -1) }},
		{"1e-400", func(v float64) bool { return v == 0 }},
	}

	for _, tt := range tests {
		rec, err := ParseLine([]byte("id,1," + tt.value + ",date"))
		if err != nil {
			t.Errorf("value %q rejected: %v", tt.value, err)
			continue
		}
		if !tt.check(rec.Value) {
			t.Errorf("value %q parsed as %v", tt.value, rec.Value)
		}
	}
}

func TestScanner(t *testing.T) {
	data := []byte("a,1,10.00,d\n" +
		"bad line\n" +
		"\n" +
		"b,2,2.5,d\n" +
		"c,x,1,d\n" +
		"d,1,5.50,d")

	s := New(data)
	var got []Record
	lines := 0
	for s.Scan() {
		lines++
		if rec, ok := s.Record(); ok {
			got = append(got, rec)
		}
	}

	if lines != 6 {
		t.Errorf("scanned %d lines, want 6", lines)
	}
	want := []Record{{1, 10}, {2, 2.5}, {1, 5.5}}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if s.Valid() != 3 || s.Malformed() != 3 {
		t.Errorf("valid=%d malformed=%d, want 3/3", s.Valid(), s.Malformed())
	}
	if s.Offset() != len(data) {
		t.Errorf("offset = %d, want %d", s.Offset(), len(data))
	}
	if s.Scan() {
		t.Error("Scan after exhaustion returned true")
	}
}

func TestScannerStaysInRegion(t *testing.T) {
	full := []byte("a,1,1,d\nb,2,2,d\nc,3,3,d\n")
	// Region ends inside the second record; the tail must not be read.
	region := full[:12]

	s := New(region)
	var keys []int64
	for s.Scan() {
		if rec, ok := s.Record(); ok {
			keys = append(keys, rec.Key)
		}
	}
	if len(keys) != 1 || keys[0] != 1 {
		t.Errorf("keys = %v, want [1]", keys)
	}
	if s.Malformed() != 1 {
		t.Errorf("malformed = %d, want 1 for the truncated record", s.Malformed())
	}
}

func TestScannerEmpty(t *testing.T) {
	s := New(nil)
	if s.Scan() {
		t.Error("Scan on empty region returned true")
	}
	if s.Valid() != 0 || s.Malformed() != 0 {
		t.Error("counters should be zero")
	}
}

func TestScannerDoesNotAllocate(t *testing.T) {
	data := []byte(strings.Repeat("12345678901234567890,4242,1234.56,2024-03-04 05:06:07\n", 100) +
		strings.Repeat("bad,row\n", 10))

	allocs := testing.AllocsPerRun(20, func() {
		s := Scanner{buf: data}
		for s.Scan() {
			_, _ = s.Record()
		}
	})
	if allocs != 0 {
		t.Errorf("scanner allocated %.1f times per run, want 0", allocs)
	}
}

func BenchmarkScanner(b *testing.B) {
	data := []byte(strings.Repeat("12345678901234567890,4242,1234.56,2024-03-04 05:06:07\n", 10000))
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s := New(data)
		var sum float64
		for s.Scan() {
			if rec, ok := s.Record(); ok {
				sum += rec.Value
			}
		}
		_ = sum
	}
}
