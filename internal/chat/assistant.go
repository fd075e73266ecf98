package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/resilience"
	"github.com/sells-group/hscore/internal/store"
	"github.com/sells-group/hscore/pkg/anthropic"
)

// DefaultModel is used when the config names none.
const DefaultModel = "claude-haiku-4-5-20251001"

// SystemPrompt is the base prompt sent with every request.
const SystemPrompt = `You are a helpful assistant for the Hawker Opportunity Score platform, which helps identify promising locations for new hawker centres in Singapore.

RULES:
1. Only use data that appears in the conversation or in a [SUBZONE DATA] block.
2. For questions about specific subzones, rankings or scores, answer from the [SUBZONE DATA] block.
3. Never make up or guess subzone names, rankings or scores.
4. If the data is not there, say: "I don't have that specific data. Please use the interactive map to explore subzone rankings."

FORMATTING:
- Put each list item on its own line, with a blank line between numbered items.
- Separate paragraphs with blank lines.

About the platform:
- It scores every Singapore subzone with a Hawker Opportunity Score (H-Score) between 0 and 1.
- The score combines demand (population), supply (existing hawker centres, which lower the score) and accessibility (MRT stations and bus stops).
- H_score = rescale(0.5 x Dem - 0.3 x Sup + 0.2 x Acc), where each part is a z-score across subzones and Acc = 0.7 x MRT + 0.3 x bus.
- Rank 1 is the best opportunity. Ranks are shown as "rank/total".
- Data comes from URA subzone boundaries, LTA transit layers, NEA hawker centres and the Singapore census.

Be concise, friendly and accurate. Use Singapore context when relevant.`

// Source reads the current snapshot. store.Store satisfies it.
type Source interface {
	CurrentSnapshot(ctx context.Context) (*model.Snapshot, error)
	ListSubzones(ctx context.Context, snapshotID string, filter store.SubzoneFilter) ([]model.ScoredSubzone, error)
}

// Reply is an assistant answer.
type Reply struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Intent  Intent `json:"intent,omitempty"`
}

// Assistant answers questions about the current snapshot.
type Assistant struct {
	client    anthropic.Client
	source    Source
	model     string
	maxTokens int64
	breaker   *resilience.Breaker
}

// NewAssistant creates an Assistant. source may be nil, in which case no
// subzone data is ever attached.
func NewAssistant(client anthropic.Client, source Source, cfg config.AnthropicConfig) *Assistant {
	a := &Assistant{
		client:    client,
		source:    source,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		breaker: resilience.NewBreaker("anthropic", resilience.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  time.Duration(cfg.BreakerCooldownSecs) * time.Second,
		}),
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 1024
	}
	return a
}

// Chat answers the last user message in a conversation. Messages with
// role "system" are passed as extra system blocks.
func (a *Assistant) Chat(ctx context.Context, messages []anthropic.Message) (*Reply, error) {
	var (
		convo []anthropic.Message
		extra []string
		last  string
	)
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case "system":
			extra = append(extra, content)
		case "user", "assistant":
			convo = append(convo, anthropic.Message{Role: m.Role, Content: content})
			if m.Role == "user" {
				last = content
			}
		default:
			return nil, eris.Errorf("chat: unknown role %q", m.Role)
		}
	}
	if len(convo) == 0 || convo[len(convo)-1].Role != "user" {
		return nil, eris.New("chat: conversation must end with a user message")
	}

	intent := DetectIntent(last)
	data := a.subzoneData(ctx, intent)

	reply, err := a.complete(ctx, "chat", convo, append(extra, data)...)
	if err != nil {
		return nil, err
	}
	reply.Intent = intent
	return reply, nil
}

// Ask answers a single question.
func (a *Assistant) Ask(ctx context.Context, question string) (*Reply, error) {
	return a.Chat(ctx, []anthropic.Message{{Role: "user", Content: question}})
}

// Insight asks for a short business reading of one subzone.
func (a *Assistant) Insight(ctx context.Context, s model.ScoredSubzone, total int) (*Reply, error) {
	pa := s.PlanningArea
	if pa == "" {
		pa = "Unknown"
	}
	prompt := printer.Sprintf(`Based on the following subzone data, give a brief analysis of the hawker centre opportunity (2-3 sentences):

Subzone: %s
Planning Area: %s
H-Score: %.2f
Rank: %s
Population: %d
Existing Hawker Centres: %d
MRT Stations: %d
Bus Stops: %d

Give a concise business insight.`,
		s.DisplayName(), pa, s.HScore, rankOrNA(s.HRank, total), s.Population, s.Hawker, s.MRT, s.Bus)

	return a.complete(ctx, "insight", []anthropic.Message{{Role: "user", Content: prompt}})
}

func (a *Assistant) complete(ctx context.Context, phase string, convo []anthropic.Message, blocks ...string) (*Reply, error) {
	req := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildSystemBlocks(SystemPrompt, blocks...),
		Messages:  convo,
	}
	resp, err := resilience.Call(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "chat: %s completion", phase)
	}
	resp.Usage.LogCost(a.model, phase)

	name := resp.Model
	if name == "" {
		name = a.model
	}
	return &Reply{Content: strings.TrimSpace(resp.Text()), Model: name}, nil
}

// BreakerStats reports the state of the circuit guarding the model.
func (a *Assistant) BreakerStats() resilience.Stats {
	return a.breaker.Stats()
}

// subzoneData fetches the rows an intent needs and formats them. Fetch
// failures are logged and the question is answered without data.
func (a *Assistant) subzoneData(ctx context.Context, in Intent) string {
	if in.Kind == IntentNone || a.source == nil {
		return ""
	}
	log := zap.L().With(zap.String("component", "chat"), zap.String("intent", string(in.Kind)))

	snap, err := a.source.CurrentSnapshot(ctx)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			log.Warn("chat: load current snapshot", zap.Error(err))
		}
		return ""
	}

	rows, err := a.source.ListSubzones(ctx, snap.ID, fetchFilter(in))
	if err != nil {
		log.Warn("chat: load subzones", zap.String("snapshot", snap.ID), zap.Error(err))
		return ""
	}
	picked := selectRows(in, rows)
	log.Debug("chat: attached subzone data", zap.Int("rows", len(picked)))
	return FormatContext(picked, snap.Subzones)
}

// fetchFilter bounds the rows read for an intent. Extremes need the whole
// snapshot.
func fetchFilter(in Intent) store.SubzoneFilter {
	switch in.Kind {
	case IntentRank:
		return store.SubzoneFilter{RankTop: max(in.N+RankWindow, MinRankFetch)}
	case IntentTop:
		return store.SubzoneFilter{RankTop: in.N}
	}
	return store.SubzoneFilter{}
}

func rankOrNA(rank, total int) string {
	if rank <= 0 {
		return "N/A"
	}
	if total <= 0 {
		return fmt.Sprint(rank)
	}
	return model.RankLabel(rank, total)
}
