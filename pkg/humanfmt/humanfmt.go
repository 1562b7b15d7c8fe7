// Package humanfmt formats sizes, durations, rates, counts and monetary
// amounts for logs and reports.
package humanfmt

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

var byteUnits = []struct {
	size float64
	name string
}{
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{KiB, "KiB"},
}

// scaleBytes formats v with the largest IEC unit not exceeding it.
func scaleBytes(v float64, suffix string) (string, bool) {
	for _, u := range byteUnits {
		if v >= u.size {
			return fmt.Sprintf("%.2f %s%s", v/u.size, u.name, suffix), true
		}
	}
	return "", false
}

// Bytes formats a byte count, e.g. "1.23 GiB".
func Bytes(b int64) string {
	if s, ok := scaleBytes(float64(b), ""); ok {
		return s
	}
	return fmt.Sprintf("%d B", b)
}

// Duration formats d compactly: "1.23s", "45.6ms", "1m30s", "2h15m".
func Duration(d time.Duration) string {
	if d < 0 {
		return d.String()
	}

	switch {
	case d >= time.Hour:
		return compound(d/time.Hour, "h", (d%time.Hour)/time.Minute, "m")
	case d >= time.Minute:
		return compound(d/time.Minute, "m", (d%time.Minute)/time.Second, "s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func compound(major time.Duration, majorUnit string, minor time.Duration, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s%d%s", major, majorUnit, minor, minorUnit)
}

// Throughput formats bytes processed over d as a rate, e.g. "123.4 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	bps := float64(bytes) / d.Seconds()
	if s, ok := scaleBytes(bps, "/s"); ok {
		return s
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

// Count abbreviates n with a K/M/B suffix, e.g. "1.23M".
func Count(n int64) string {
	const (
		thousand = 1000
		million  = 1000 * thousand
		billion  = 1000 * million
	)

	switch {
	case n >= billion:
		return fmt.Sprintf("%.2fB", float64(n)/billion)
	case n >= million:
		return fmt.Sprintf("%.2fM", float64(n)/million)
	case n >= thousand:
		return fmt.Sprintf("%.2fK", float64(n)/thousand)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Grouped writes n with comma thousands separators, e.g. "1,234,567".
func Grouped(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

// Amount formats v with two decimals and grouped thousands, e.g.
// "1,234,567.89". Non-finite values print as "NaN", "+Inf" or "-Inf".
func Amount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return message.NewPrinter(language.English).Sprintf("%.2f", v)
}
