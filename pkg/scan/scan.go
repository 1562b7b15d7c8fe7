// Package scan parses transaction records directly from byte slices.
//
// A record line has the shape
//
//	transaction_id,user_id,amount,date
//
// The key is the field between the first and second comma and the value the
// field between the second and third comma. Fields after the third comma are
// ignored, whatever their length. Parsing does not allocate.
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unsafe"
)

// Delimiter separates fields within a record.
const Delimiter = ','

var (
	// ErrMalformed is wrapped by every per-line parse error.
	ErrMalformed = errors.New("malformed record")
	// ErrTooFewFields indicates a line with fewer than three delimiters.
	ErrTooFewFields = fmt.Errorf("%w: fewer than three delimiters", ErrMalformed)
	// ErrInvalidKey indicates a key field that is not a base-10 integer.
	ErrInvalidKey = fmt.Errorf("%w: key is not an integer", ErrMalformed)
	// ErrInvalidValue indicates a value field that is not a decimal number.
	ErrInvalidValue = fmt.Errorf("%w: value is not a number", ErrMalformed)
)

// Record is a parsed (key, value) pair. It holds no references into the
// scanned bytes.
type Record struct {
	Key   int64
	Value float64
}

// ParseLine parses a single line without its trailing newline.
func ParseLine(line []byte) (Record, error) {
	c1, c2, c3 := -1, -1, -1
	for i, b := range line {
		if b != Delimiter {
			continue
		}
		if c1 < 0 {
			c1 = i
		} else if c2 < 0 {
			c2 = i
		} else {
			c3 = i
			break
		}
	}
	if c3 < 0 {
		return Record{}, ErrTooFewFields
	}

	key, ok := parseInt(line[c1+1 : c2])
	if !ok {
		return Record{}, ErrInvalidKey
	}
	value, ok := parseFloat(line[c2+1 : c3])
	if !ok {
		return Record{}, ErrInvalidValue
	}
	return Record{Key: key, Value: value}, nil
}

// parseInt parses an optionally signed base-10 integer. Empty input, stray
// characters and int64 overflow are rejected.
func parseInt(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}

	// Accumulate as a negative number so that MinInt64 fits.
	const cutoff = -(1 << 63) / 10
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n < cutoff {
			return 0, false
		}
		n *= 10
		if n < -(1<<63)+d {
			return 0, false
		}
		n -= d
	}
	if neg {
		return n, true
	}
	if n == -(1 << 63) {
		return 0, false
	}
	return -n, true
}

// parseFloat parses a decimal floating-point literal, including inf and nan
// forms. Literals outside the float64 range parse to ±Inf or ±0.
func parseFloat(b []byte) (float64, bool) {
	if len(b) == 0 || isHexPrefixed(b) {
		return 0, false
	}
	// The string view never outlives this call; strconv copies it into any
	// error it returns.
	s := unsafe.String(unsafe.SliceData(b), len(b))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// isHexPrefixed reports whether b starts with 0x or 0X after an optional
// sign. strconv accepts hex floats; the input format does not.
func isHexPrefixed(b []byte) bool {
	if b[0] == '+' || b[0] == '-' {
		b = b[1:]
	}
	return len(b) >= 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X')
}

// Scanner walks the lines of a byte region and parses each one.
//
// It is a lazy, finite, non-restartable sequence: every call to Scan
// consumes exactly one line, well-formed or not. The scanner never reads
// outside the slice it was created with.
type Scanner struct {
	buf       []byte
	pos       int
	rec       Record
	ok        bool
	valid     int64
	malformed int64
}

// New returns a Scanner over region.
func New(region []byte) *Scanner {
	return &Scanner{buf: region}
}

// Scan advances to the next line. It returns false once the region is
// exhausted.
func (s *Scanner) Scan() bool {
	if s.pos >= len(s.buf) {
		s.ok = false
		return false
	}

	rest := s.buf[s.pos:]
	line := rest
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		line = rest[:i]
		s.pos += i + 1
	} else {
		s.pos = len(s.buf)
	}

	rec, err := ParseLine(line)
	if err != nil {
		s.rec = Record{}
		s.ok = false
		s.malformed++
		return true
	}
	s.rec = rec
	s.ok = true
	s.valid++
	return true
}

// Record returns the record parsed by the last call to Scan and whether
// that line was well-formed.
func (s *Scanner) Record() (Record, bool) {
	return s.rec, s.ok
}

// Valid returns the number of well-formed lines seen so far.
func (s *Scanner) Valid() int64 {
	return s.valid
}

// Malformed returns the number of malformed lines seen so far.
func (s *Scanner) Malformed() int64 {
	return s.malformed
}

// Offset returns the number of bytes consumed from the region.
func (s *Scanner) Offset() int {
	return s.pos
}
