// Package report writes a short, upbeat recap of a finished auction with an
// OpenAI chat model.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
)

// ErrEmptyReport is returned when the model answers without content.
var ErrEmptyReport = errors.New("model returned no report")

const systemPrompt = `We're hosting an osu! tournament. Captains have just finished bidding against each other to compose their team with a balance of %d points. Players are seeded in tiers 1-4 by rank (tier 1 is best). Unsold players go to a free agent pool. None of this has to be explained.
You are the Discord bot that ran the auction. Write a fun presentation of the results for the players to read. Format it with *italics* and **bold**; Discord emojis are welcome. Keep it under 1500 characters.
The user message is JSON:
playersSold - number of players sold
totalSpent - points spent by all captains
totalBids - bids placed by all captains
totalPlayers - players in the auction
mostValuablePlayer, mostValuablePlayerValue, mostValuablePlayerTier, mostValuablePlayerTeam - the most expensive sale
biggestSpender, biggestSpenderAmount, biggestSpenderTeam - the captain who spent the most
freeAgents - players nobody bought`

// Generator implements auction.ReportGenerator.
type Generator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New returns a Generator using cfg's key, endpoint and model.
func New(cfg config.ReportConfig, tp trace.TracerProvider, mp metric.MeterProvider) *Generator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		),
	}
	return &Generator{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// summary is the user prompt payload.
type summary struct {
	PlayersSold             int      `json:"playersSold"`
	TotalSpent              int      `json:"totalSpent"`
	TotalBids               int      `json:"totalBids"`
	TotalPlayers            int      `json:"totalPlayers"`
	MostValuablePlayer      string   `json:"mostValuablePlayer,omitempty"`
	MostValuablePlayerValue int      `json:"mostValuablePlayerValue,omitempty"`
	MostValuablePlayerTier  int      `json:"mostValuablePlayerTier,omitempty"`
	MostValuablePlayerTeam  string   `json:"mostValuablePlayerTeam,omitempty"`
	BiggestSpender          string   `json:"biggestSpender,omitempty"`
	BiggestSpenderAmount    int      `json:"biggestSpenderAmount,omitempty"`
	BiggestSpenderTeam      string   `json:"biggestSpenderTeam,omitempty"`
	FreeAgents              []string `json:"freeAgents"`
}

// Summarize returns the model's recap of results.
func (g *Generator) Summarize(ctx context.Context, results auction.Results) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	user, err := json.Marshal(newSummary(results))
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: Prompt(results)},
			{Role: openai.ChatMessageRoleUser, Content: string(user)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReport
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReport
	}
	return text, nil
}

// Prompt returns the system prompt for results, including the notes
// operators added during the run.
func Prompt(results auction.Results) string {
	var b strings.Builder
	fmt.Fprintf(&b, systemPrompt, results.StartingBalance)
	if len(results.Events) > 0 {
		b.WriteString("\nNotable or funny events to weave in, but not the main focus:\n")
		for _, e := range results.Events {
			b.WriteString("- ")
			b.WriteString(e)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func newSummary(r auction.Results) summary {
	s := summary{
		PlayersSold:  r.Stats.PlayersSold,
		TotalSpent:   r.Stats.TotalSpent,
		TotalBids:    r.Stats.TotalBids,
		TotalPlayers: r.Stats.TotalPlayers,
		FreeAgents:   make([]string, 0, len(r.FreeAgents)),
	}
	if mvp := r.Stats.MVP; mvp != nil {
		s.MostValuablePlayer = mvp.Name
		s.MostValuablePlayerValue = mvp.Value
		s.MostValuablePlayerTier = mvp.Tier
		s.MostValuablePlayerTeam = mvp.Team
	}
	if sp := r.BiggestSpender; sp != nil {
		s.BiggestSpender = sp.Name
		s.BiggestSpenderAmount = sp.Amount
		s.BiggestSpenderTeam = sp.Team
	}
	for _, p := range r.FreeAgents {
		s.FreeAgents = append(s.FreeAgents, p.Name)
	}
	return s
}
