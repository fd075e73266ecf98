package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sells-group/hscore/internal/model"
)

// FormatSummary renders a run as a plain-text report with the top n
// subzones.
func FormatSummary(res *Result, n int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "H-Score run %s\n", res.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Working CRS: %s (projected %s)\n\n", res.Working, res.Projected)

	b.WriteString("Inputs\n")
	names := make([]string, 0, len(res.Inputs))
	for k := range res.Inputs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		in := res.Inputs[name]
		if in.Missing {
			fmt.Fprintf(&b, "  %-10s missing (%s)\n", name, in.Source)
			continue
		}
		fmt.Fprintf(&b, "  %-10s %s features from %s\n", name, humanize.Comma(int64(in.Features)), in.Source)
	}

	b.WriteString("\nSteps\n")
	for _, s := range res.Steps {
		fmt.Fprintf(&b, "  %-9s %-8s %dms\n", s.Name, s.Status, s.Duration)
	}

	st := res.Stats
	fmt.Fprintf(&b, "\n%d subzones (%d repaired), %d MRT stations from %d exits, %d without census rows\n\n",
		st.Zones, st.ZonesRepaired, st.Stations, st.Exits, st.ZonesWithoutCensus)

	total := len(res.Subzones)
	fmt.Fprintf(&b, "%-8s %-30s %-20s %12s %7s %4s %4s %8s\n",
		"Rank", "Subzone", "Planning area", "Population", "Hawker", "MRT", "Bus", "H-Score")
	for _, s := range res.Top(n) {
		fmt.Fprintf(&b, "%-8s %-30s %-20s %12s %7d %4d %4d %8.3f\n",
			model.RankLabel(s.HRank, total),
			truncate(s.Subzone, 30),
			truncate(s.PlanningArea, 20),
			humanize.Comma(s.Population),
			s.Hawker, s.MRT, s.Bus, s.HScore)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
