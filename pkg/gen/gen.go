// Package gen produces synthetic transaction data in the input format of
// the aggregator, optionally mixed with duplicated and fuzzed rows.
package gen

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Header is the first line of every generated file.
const Header = "transaction_id,user_id,transaction_amount,transaction_date\n"

// DateLayout formats transaction timestamps.
const DateLayout = "2006-01-02 15:04:05"

const (
	idDigits  = 20
	maxUserID = 9999
	maxAmount = 100000
	// Amounts are 10^U(0, maxExponent), capped at maxAmount.
	maxExponent = 5
	dateDays    = 365
)

// ErrInvalidRate is returned for probabilities outside [0, 1].
var ErrInvalidRate = errors.New("rate must be between 0.0 and 1.0")

// Config controls generation.
type Config struct {
	// ErrorRate is the probability that one field of a fresh row is
	// replaced by a fuzz value.
	ErrorRate float64

	// DuplicateRate is the probability that a row repeats the previous
	// fresh row.
	DuplicateRate float64

	// Seed for reproducible output. 0 = use default seed.
	Seed int64

	// Start is the earliest timestamp. Zero means 2024-01-01 UTC.
	Start time.Time
}

// DefaultConfig returns a generator config that emits clean, unique rows.
func DefaultConfig() Config {
	return Config{
		Seed:  42,
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks both rates.
func (c Config) Validate() error {
	if !(c.ErrorRate >= 0 && c.ErrorRate <= 1) {
		return fmt.Errorf("%w: error rate %v", ErrInvalidRate, c.ErrorRate)
	}
	if !(c.DuplicateRate >= 0 && c.DuplicateRate <= 1) {
		return fmt.Errorf("%w: duplicate rate %v", ErrInvalidRate, c.DuplicateRate)
	}
	return nil
}

// Field names a transaction column.
type Field int

const (
	FieldNone Field = iota
	FieldID
	FieldUser
	FieldAmount
	FieldDate
)

func (f Field) String() string {
	switch f {
	case FieldID:
		return "transaction_id"
	case FieldUser:
		return "user_id"
	case FieldAmount:
		return "transaction_amount"
	case FieldDate:
		return "transaction_date"
	default:
		return "none"
	}
}

// Transaction is one generated row. Fields are kept as text so fuzz
// values can take their place.
type Transaction struct {
	ID     string
	User   string
	Amount string
	Date   string

	// Fuzzed is the column that was replaced, or FieldNone.
	Fuzzed Field
}

// AppendCSV appends t as a newline-terminated CSV line.
func (t Transaction) AppendCSV(dst []byte) []byte {
	dst = append(dst, t.ID...)
	dst = append(dst, ',')
	dst = append(dst, t.User...)
	dst = append(dst, ',')
	dst = append(dst, t.Amount...)
	dst = append(dst, ',')
	dst = append(dst, t.Date...)
	return append(dst, '\n')
}

// Generator emits transactions. It is not safe for concurrent use.
type Generator struct {
	cfg  Config
	rng  *rand.Rand
	last *Transaction
}

// New validates cfg and returns a Generator.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultConfig().Start
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next returns the next transaction: a repeat of the previous fresh row
// with probability DuplicateRate, otherwise a fresh row that has one column
// fuzzed with probability ErrorRate.
func (g *Generator) Next() Transaction {
	if g.last != nil && g.cfg.DuplicateRate > 0 && g.rng.Float64() < g.cfg.DuplicateRate {
		return *g.last
	}

	t := g.valid()
	g.last = &t

	if g.cfg.ErrorRate > 0 && g.rng.Float64() < g.cfg.ErrorRate {
		return g.fuzz(t)
	}
	return t
}

func (g *Generator) valid() Transaction {
	var id [idDigits]byte
	for i := range id {
		id[i] = '0' + byte(g.rng.Intn(10))
	}

	amount := math.Round(math.Min(maxAmount, math.Pow(10, g.rng.Float64()*maxExponent))*100) / 100

	offset := time.Duration(g.rng.Intn(dateDays+1))*24*time.Hour +
		time.Duration(g.rng.Intn(86400))*time.Second

	return Transaction{
		ID:     string(id[:]),
		User:   strconv.Itoa(1 + g.rng.Intn(maxUserID)),
		Amount: strconv.FormatFloat(amount, 'f', 2, 64),
		Date:   g.cfg.Start.Add(offset).Format(DateLayout),
	}
}

var (
	stringFuzz = []string{
		strings.Repeat("a", 1_000_000),
		"",
		"NULL",
		"\"'\\/\b\f\n\r\t",
		"诶比伊艾弗吉",
		"★☆⚡⚔",
		" ",
		"\x00\x01\x02\x03",
	}
	numberFuzz = []string{
		"inf",
		"-inf",
		"nan",
		"9007199254740993",
		"-9007199254740993",
		"18446744073709551616",
		"0.30000000000000004",
		"-0",
		"1e308",
		"1e-308",
	}
	dateFuzz = []string{
		"2024-13-32 25:61:61",
		"0000-00-00 00:00:00",
		"9999-99-99 99:99:99",
		"",
		"Not a date",
		"2024-01-01T00:00:00Z",
		"1970-01-01 00:00:00",
		"9999-12-31 23:59:59",
	}
)

func (g *Generator) fuzz(t Transaction) Transaction {
	pick := func(table []string) string { return table[g.rng.Intn(len(table))] }

	t.Fuzzed = Field(1 + g.rng.Intn(4))
	switch t.Fuzzed {
	case FieldID:
		t.ID = pick(stringFuzz)
	case FieldUser:
		t.User = pick(numberFuzz)
	case FieldAmount:
		t.Amount = pick(numberFuzz)
	case FieldDate:
		t.Date = pick(dateFuzz)
	}
	return t
}
