package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		msg  string
		want Intent
	}{
		{"What is at rank 5?", Intent{Kind: IntentRank, N: 5}},
		{"Show me the top 3 subzones", Intent{Kind: IntentTop, N: 3}},
		{"best 7 places please", Intent{Kind: IntentTop, N: 7}},
		{"give me the top 500", Intent{Kind: IntentTop, N: MaxTopN}},
		{"top 0", Intent{Kind: IntentTop, N: 1}},
		{"tell me about #2", Intent{Kind: IntentRank, N: 2}},
		{"what is number 12", Intent{Kind: IntentRank, N: 12}},
		{"Rank 3 vs top 10", Intent{Kind: IntentRank, N: 3}},
		{"Which is the best subzone?", Intent{Kind: IntentRank, N: 1}},
		{"Which subzone has the highest population?", Intent{Kind: IntentExtreme, Attribute: AttrPopulation, Highest: true}},
		{"where are the fewest hawker centres", Intent{Kind: IntentExtreme, Attribute: AttrHawker}},
		{"most elderly population", Intent{Kind: IntentExtreme, Attribute: AttrElderly, Highest: true}},
		{"areas with the most young people", Intent{Kind: IntentExtreme, Attribute: AttrYouth, Highest: true}},
		{"largest working-age population", Intent{Kind: IntentExtreme, Attribute: AttrWorking, Highest: true}},
		{"Which subzone has the most MRT stations?", Intent{Kind: IntentExtreme, Attribute: AttrMRT, Highest: true}},
		{"least bus stops", Intent{Kind: IntentExtreme, Attribute: AttrBus}},
		{"lowest H-Score", Intent{Kind: IntentExtreme, Attribute: AttrScore}},
		{"List the top subzones", Intent{Kind: IntentTop, N: DefaultTopN}},
		{"which are the highest ranked subzones", Intent{Kind: IntentTop, N: DefaultTopN}},
		{"How is the score computed?", Intent{}},
		{"hello", Intent{}},
		{"the most interesting thing", Intent{}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectIntent(tt.msg))
		})
	}
}

func TestHighFirst(t *testing.T) {
	assert.True(t, highFirst("most people and fewest hawkers"))
	assert.False(t, highFirst("fewest hawkers and most people"))
	assert.False(t, highFirst("fewest hawkers"))
}
