// Package report renders aggregate tracked time for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/maruel/natural"
)

// TotalsHeader precedes the per-app totals table.
const TotalsHeader = "Total time spent per app:"

// Sorted returns a copy of rows ordered by app name in natural order.
func Sorted(rows []storage.EntityTotal) []storage.EntityTotal {
	sorted := make([]storage.EntityTotal, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return natural.Less(sorted[i].Name, sorted[j].Name)
	})
	return sorted
}

// Clock splits seconds into hours, minutes and seconds.
func Clock(total int64) (h, m, s int64) {
	return total / 3600, (total % 3600) / 60, total % 60
}

// Hours converts seconds to fractional hours.
func Hours(total int64) float64 {
	return float64(total) / 3600
}

// WriteTotals writes the HH:MM:SS table of time spent per app.
func WriteTotals(w io.Writer, rows []storage.EntityTotal) error {
	header := color.New(color.FgCyan, color.Bold)
	if _, err := header.Fprintf(w, "\n%s\n", TotalsHeader); err != nil {
		return err
	}

	for _, row := range Sorted(rows) {
		h, m, s := Clock(row.TotalSeconds)
		if _, err := fmt.Fprintf(w, "%-20s %02d:%02d:%02d\n", row.Name, h, m, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteHours writes the time spent per app in hours with one decimal.
func WriteHours(w io.Writer, rows []storage.EntityTotal) error {
	for _, row := range Sorted(rows) {
		if _, err := fmt.Fprintf(w, "%-20s %.1fh\n", row.Name, Hours(row.TotalSeconds)); err != nil {
			return err
		}
	}
	return nil
}

// WriteHoursFor writes the bare hour figure for app. Nothing is written when
// app has no recorded time; found reports which case applied.
func WriteHoursFor(w io.Writer, rows []storage.EntityTotal, app string) (found bool, err error) {
	for _, row := range rows {
		if row.Name != app {
			continue
		}
		_, err = fmt.Fprintf(w, "%.1f\n", Hours(row.TotalSeconds))
		return true, err
	}
	return false, nil
}
