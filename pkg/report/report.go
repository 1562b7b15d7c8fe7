// Package report ranks aggregated totals and renders the result.
package report

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/eunmann/txagg/pkg/accum"
	"github.com/eunmann/txagg/pkg/humanfmt"
)

// DefaultTopK is the number of rows reported when no limit is configured.
const DefaultTopK = 5

// Row is one ranked key.
type Row struct {
	Key     int64   `parquet:"key"`
	Sum     float64 `parquet:"total"`
	Count   int64   `parquet:"count"`
	Average float64 `parquet:"average"`
}

// Summary holds the run-wide counters printed under the table.
type Summary struct {
	DistinctKeys   int
	ValidRecords   int64
	InvalidRecords int64
	TotalSum       float64
}

// Report is a ranked top-K list plus its summary.
type Report struct {
	Top     []Row
	Summary Summary
}

// Rank returns the k keys with the largest sums.
//
// Rows are ordered by sum descending. Equal sums are ordered by key
// descending. NaN sums come after every other value, including -Inf, and
// are ordered among themselves by key descending. The result has
// min(k, len(totals)) rows; k <= 0 yields an empty slice.
func Rank(totals map[int64]accum.Totals, k int) []Row {
	if k <= 0 || len(totals) == 0 {
		return []Row{}
	}

	rows := make([]Row, 0, len(totals))
	for key, t := range totals {
		rows = append(rows, Row{
			Key:     key,
			Sum:     t.Sum,
			Count:   t.Count,
			Average: average(t),
		})
	}
	slices.SortFunc(rows, compareRows)

	if k < len(rows) {
		rows = rows[:k:k]
	}
	return rows
}

// compareRows orders a before b when a ranks higher.
func compareRows(a, b Row) int {
	aNaN, bNaN := math.IsNaN(a.Sum), math.IsNaN(b.Sum)
	switch {
	case aNaN && !bNaN:
		return 1
	case !aNaN && bNaN:
		return -1
	case !aNaN && a.Sum != b.Sum:
		if a.Sum > b.Sum {
			return -1
		}
		return 1
	}
	return cmp.Compare(b.Key, a.Key)
}

func average(t accum.Totals) float64 {
	if t.Count == 0 {
		return 0
	}
	return t.Sum / float64(t.Count)
}

// Build ranks totals and attaches the summary counters.
func Build(totals map[int64]accum.Totals, k int, summary Summary) *Report {
	summary.DistinctKeys = len(totals)
	return &Report{
		Top:     Rank(totals, k),
		Summary: summary,
	}
}

const ruleWidth = 60

// Render writes the ranked table and the summary counters to w.
func Render(w io.Writer, rep *Report) error {
	var b strings.Builder
	rule := strings.Repeat("-", ruleWidth)

	fmt.Fprintf(&b, "Top %d keys by total amount:\n", len(rep.Top))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%-10s %15s %15s %15s\n", "Key", "Total", "Count", "Average")
	fmt.Fprintln(&b, rule)
	for _, r := range rep.Top {
		fmt.Fprintf(&b, "%-10d %15.2f %15d %15.2f\n", r.Key, r.Sum, r.Count, r.Average)
	}

	s := rep.Summary
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Distinct keys:  %s\n", humanfmt.Grouped(int64(s.DistinctKeys)))
	fmt.Fprintf(&b, "Valid records:  %s\n", humanfmt.Grouped(s.ValidRecords))
	fmt.Fprintf(&b, "Total amount:   %s\n", humanfmt.Amount(s.TotalSum))
	if s.InvalidRecords > 0 {
		fmt.Fprintf(&b, "\nWarning: %s records were malformed and skipped\n", humanfmt.Grouped(s.InvalidRecords))
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
