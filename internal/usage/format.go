package usage

import (
	"fmt"
	"sort"
	"strings"
)

// FormatTotals renders the tracker's aggregates as a human-readable report,
// one line per provider/model pair, sorted for stable output.
func FormatTotals(totals []ModelTotal) string {
	if len(totals) == 0 {
		return "no usage recorded"
	}

	sorted := make([]ModelTotal, len(totals))
	copy(sorted, totals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Provider != sorted[j].Provider {
			return sorted[i].Provider < sorted[j].Provider
		}
		return sorted[i].Model < sorted[j].Model
	})

	var b strings.Builder
	for _, row := range sorted {
		fmt.Fprintf(&b, "%s/%s: %d calls, %d in + %d out tokens",
			row.Provider, row.Model, row.Calls, row.Usage.InputTokens, row.Usage.OutputTokens)
		if row.EstimatedCost > 0 {
			fmt.Fprintf(&b, " (~$%.4f)", row.EstimatedCost)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
