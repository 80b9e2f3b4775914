package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/report"
	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func testResults() auction.Results {
	return auction.Results{
		RunID:           "run-1",
		StartingBalance: 300,
		Stats: auction.Stats{
			TotalBids: 3, TotalSpent: 150, PlayersSold: 2, TotalPlayers: 3,
			MVP: &auction.MVP{Name: "player-five", Value: 80, Tier: 1, Team: "Waffles"},
		},
		BiggestSpender: &auction.Spender{Name: "captain-two", Team: "Waffles", Amount: 150},
		FreeAgents:     []roster.PlayerLot{{ID: 6006, Name: "player-six", Tier: 1}},
		Events:         []string{"captain-one fell asleep"},
	}
}

// fakeOpenAI answers chat completions with reply and records the last request.
func fakeOpenAI(t *testing.T, status int, reply string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGenerator(srv *httptest.Server) *report.Generator {
	return report.New(config.ReportConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, noop.NewTracerProvider(), metricnoop.NewMeterProvider())
}

func TestSummarize(t *testing.T) {
	var req chatRequest
	g := newGenerator(fakeOpenAI(t, http.StatusOK, "  **Waffles** won big!  ", &req))

	got, err := g.Summarize(context.Background(), testResults())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "**Waffles** won big!" {
		t.Errorf("summary = %q", got)
	}

	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v, want system then user", req.Messages)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(req.Messages[1].Content), &payload); err != nil {
		t.Fatalf("user message is not JSON: %v", err)
	}
	if payload["mostValuablePlayer"] != "player-five" || payload["biggestSpenderTeam"] != "Waffles" {
		t.Errorf("payload = %v", payload)
	}
	if payload["playersSold"] != float64(2) {
		t.Errorf("playersSold = %v, want 2", payload["playersSold"])
	}
}

func TestSummarize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   error
	}{
		{name: "api error", status: http.StatusTooManyRequests},
		{name: "empty reply", status: http.StatusOK, reply: "   ", want: report.ErrEmptyReport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(fakeOpenAI(t, tt.status, tt.reply, nil))
			_, err := g.Summarize(context.Background(), testResults())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	r := testResults()
	p := report.Prompt(r)
	if !strings.Contains(p, "balance of 300 points") {
		t.Errorf("prompt missing starting balance:\n%s", p)
	}
	if !strings.Contains(p, "- captain-one fell asleep") {
		t.Errorf("prompt missing event:\n%s", p)
	}

	r.Events = nil
	if strings.Contains(report.Prompt(r), "Notable") {
		t.Error("prompt mentions events when there are none")
	}
}
