// Package chat answers questions about the current snapshot. It detects
// what rows a question needs, renders them as a [SUBZONE DATA] context
// block, and sends both to the language model.
package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// IntentKind classifies a question by the rows it needs.
type IntentKind string

const (
	IntentNone    IntentKind = ""
	IntentRank    IntentKind = "specific_rank"
	IntentTop     IntentKind = "top_n"
	IntentExtreme IntentKind = "extreme"
)

// Attribute is a subzone field that extremes can be asked about.
type Attribute string

const (
	AttrPopulation Attribute = "population"
	AttrYouth      Attribute = "youth"
	AttrWorking    Attribute = "working"
	AttrElderly    Attribute = "elderly"
	AttrHawker     Attribute = "hawker"
	AttrMRT        Attribute = "mrt"
	AttrBus        Attribute = "bus"
	AttrScore      Attribute = "score"
)

// Intent is the detected data request.
type Intent struct {
	Kind      IntentKind `json:"kind,omitempty"`
	N         int        `json:"n,omitempty"`
	Attribute Attribute  `json:"attribute,omitempty"`
	Highest   bool       `json:"highest,omitempty"`
}

// DefaultTopN is used for "top subzones" questions without a number.
const DefaultTopN = 10

var numbered = []struct {
	re   *regexp.Regexp
	kind IntentKind
}{
	{regexp.MustCompile(`\brank\s+(\d+)`), IntentRank},
	{regexp.MustCompile(`\btop\s+(\d+)`), IntentTop},
	{regexp.MustCompile(`\bbest\s+(\d+)`), IntentTop},
	{regexp.MustCompile(`#(\d+)`), IntentRank},
	{regexp.MustCompile(`\bnumber\s+(\d+)`), IntentRank},
}

var (
	bestOne   = regexp.MustCompile(`\b(best|top) subzone\b`)
	highWords = regexp.MustCompile(`\b(highest|most|largest|biggest|greatest|maximum|max)\b`)
	lowWords  = regexp.MustCompile(`\b(lowest|least|fewest|smallest|minimum|min)\b`)
	topWords  = regexp.MustCompile(`\b(top|best|highest[- ]ranked)\b`)
)

// attributeWords is checked in order; the first attribute with a matching
// word wins. Age cohorts come before population so "elderly population"
// resolves to the cohort.
var attributeWords = []struct {
	attr Attribute
	re   *regexp.Regexp
}{
	{AttrElderly, regexp.MustCompile(`\b(elderly|seniors?|aged|65\+?|old(er)?)\b`)},
	{AttrYouth, regexp.MustCompile(`\b(youth|young|youngsters?|children|kids)\b`)},
	{AttrWorking, regexp.MustCompile(`\b(working[- ]age|working|workers?)\b`)},
	{AttrHawker, regexp.MustCompile(`\bhawkers?\b`)},
	{AttrMRT, regexp.MustCompile(`\b(mrt|trains?|stations?)\b`)},
	{AttrBus, regexp.MustCompile(`\bbus(es)?\b`)},
	{AttrScore, regexp.MustCompile(`\b(h-?score|score|opportunity)\b`)},
	{AttrPopulation, regexp.MustCompile(`\b(population|populous|populated|people|residents|dense|density)\b`)},
}

// DetectIntent classifies msg. Numbered rank and top-N requests win over
// "the best subzone", which wins over extremes, which win over an
// unnumbered "top subzones".
func DetectIntent(msg string) Intent {
	lower := strings.ToLower(msg)

	for _, p := range numbered {
		if m := p.re.FindStringSubmatch(lower); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if p.kind == IntentTop {
				n = min(max(n, 1), MaxTopN)
			}
			return Intent{Kind: p.kind, N: n}
		}
	}

	if bestOne.MatchString(lower) {
		return Intent{Kind: IntentRank, N: 1}
	}

	high := highWords.MatchString(lower)
	low := lowWords.MatchString(lower)
	if high || low {
		for _, a := range attributeWords {
			if a.re.MatchString(lower) {
				return Intent{Kind: IntentExtreme, Attribute: a.attr, Highest: highFirst(lower)}
			}
		}
	}

	if strings.Contains(lower, "subzone") && topWords.MatchString(lower) {
		return Intent{Kind: IntentTop, N: DefaultTopN}
	}
	return Intent{}
}

// highFirst reports whether the first direction word in s asks for the
// high end, for questions naming both ("most people and fewest hawkers").
func highFirst(s string) bool {
	h := highWords.FindStringIndex(s)
	l := lowWords.FindStringIndex(s)
	return h != nil && (l == nil || h[0] < l[0])
}
