package chat

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/hscore/internal/model"
)

// Limits on rows passed to the model.
const (
	MaxTopN      = 50
	MinRankFetch = 5
	RankWindow   = 2
	ExtremeRows  = 10
)

var printer = message.NewPrinter(language.English)

// FormatContext renders subzones as a [SUBZONE DATA] block. total is the
// number of ranked subzones in the snapshot, used for "rank/total" labels.
// It returns "" for no rows.
func FormatContext(subzones []model.ScoredSubzone, total int) string {
	if len(subzones) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[SUBZONE DATA - Use this data to answer the user's question]\n")
	b.WriteString("Here are the actual subzone rankings from our database:\n\n")
	for _, s := range subzones {
		pa := s.PlanningArea
		if pa == "" {
			pa = "N/A"
		}
		printer.Fprintf(&b, "Rank #%s: %s\n", model.RankLabel(s.HRank, total), s.Subzone)
		if s.Name != nil && *s.Name != "" && *s.Name != s.Subzone {
			printer.Fprintf(&b, "  - Name: %s\n", *s.Name)
		}
		printer.Fprintf(&b, "  - H-Score: %.2f\n", s.HScore)
		printer.Fprintf(&b, "  - Planning Area: %s\n", pa)
		printer.Fprintf(&b, "  - Population: %d\n", s.Population)
		printer.Fprintf(&b, "  - Aged 0-25 / 25-65 / 65+: %d / %d / %d\n", s.Pop0To25, s.Pop25To65, s.Pop65Plus)
		printer.Fprintf(&b, "  - Existing Hawker Centres: %d\n", s.Hawker)
		printer.Fprintf(&b, "  - MRT Stations: %d\n", s.MRT)
		printer.Fprintf(&b, "  - Bus Stops: %d\n\n", s.Bus)
	}
	b.WriteString("Please answer based on this data only.\n")
	return b.String()
}

// selectRows picks the rows an intent asks for from a snapshot's subzones,
// which must be ordered by rank.
func selectRows(in Intent, subzones []model.ScoredSubzone) []model.ScoredSubzone {
	switch in.Kind {
	case IntentRank:
		var out []model.ScoredSubzone
		for _, s := range subzones {
			if abs(s.HRank-in.N) <= RankWindow {
				out = append(out, s)
			}
		}
		return out
	case IntentTop:
		out := make([]model.ScoredSubzone, 0, in.N)
		for _, s := range subzones {
			if s.HRank <= in.N {
				out = append(out, s)
			}
		}
		return out
	case IntentExtreme:
		return extremes(subzones, in.Attribute, in.Highest, ExtremeRows)
	}
	return nil
}

// extremes returns the n subzones with the highest (or lowest) value of
// attr. Ties keep rank order.
func extremes(subzones []model.ScoredSubzone, attr Attribute, highest bool, n int) []model.ScoredSubzone {
	sorted := append([]model.ScoredSubzone(nil), subzones...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := attributeValue(&sorted[i], attr), attributeValue(&sorted[j], attr)
		if highest {
			return a > b
		}
		return a < b
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func attributeValue(s *model.ScoredSubzone, attr Attribute) float64 {
	switch attr {
	case AttrPopulation:
		return float64(s.Population)
	case AttrYouth:
		return float64(s.Pop0To25)
	case AttrWorking:
		return float64(s.Pop25To65)
	case AttrElderly:
		return float64(s.Pop65Plus)
	case AttrHawker:
		return float64(s.Hawker)
	case AttrMRT:
		return float64(s.MRT)
	case AttrBus:
		return float64(s.Bus)
	default:
		return s.HScore
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
