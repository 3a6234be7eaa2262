// Package notify delivers ledger and vitality events to presentation sinks.
// Delivery is fire-and-forget; at-most-once is acceptable because these are
// display-only.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"octowatcher/internal/ledger"
)

// PhaseChange describes a life-state transition.
type PhaseChange struct {
	From string
	To   string
	HP   int64
}

// Sink receives outbound events.
type Sink interface {
	DonationAccepted(ctx context.Context, event ledger.DonationEvent) error
	PhaseChanged(ctx context.Context, change PhaseChange) error
}

// Fanout dispatches each event to every sink, logging failures instead of
// propagating them.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewFanout constructs a fan-out over the given sinks.
func NewFanout(logger zerolog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger.With().Str("component", "notify").Logger()}
}

// DonationAccepted forwards a donation event to all sinks.
func (f *Fanout) DonationAccepted(ctx context.Context, event ledger.DonationEvent) error {
	for _, sink := range f.sinks {
		if err := sink.DonationAccepted(ctx, event); err != nil {
			f.logger.Error().Err(err).Str("signature", event.Signature).Msg("donation notification failed")
		}
	}
	return nil
}

// PhaseChanged forwards a phase transition to all sinks.
func (f *Fanout) PhaseChanged(ctx context.Context, change PhaseChange) error {
	for _, sink := range f.sinks {
		if err := sink.PhaseChanged(ctx, change); err != nil {
			f.logger.Error().Err(err).Str("to", change.To).Msg("phase notification failed")
		}
	}
	return nil
}

// TelegramNotifier pushes events through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram sink.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// DonationAccepted sends a donation summary message.
func (n *TelegramNotifier) DonationAccepted(ctx context.Context, event ledger.DonationEvent) error {
	builder := strings.Builder{}
	builder.WriteString("[Octo Donation]\n")
	builder.WriteString(fmt.Sprintf("Amount: %s SOL\n", event.Amount.String()))
	builder.WriteString(fmt.Sprintf("HP added: %d\n", event.Credit))
	builder.WriteString(fmt.Sprintf("From: %s\n", shorten(event.Counterparty)))
	builder.WriteString(fmt.Sprintf("Signature: %s\n", shorten(event.Signature)))
	builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", event.ObservedAt.UTC().Format(time.RFC3339)))
	return n.send(ctx, builder.String())
}

// PhaseChanged sends a life-state transition message.
func (n *TelegramNotifier) PhaseChanged(ctx context.Context, change PhaseChange) error {
	text := fmt.Sprintf("[Octo Phase] %s -> %s (HP %d)", change.From, change.To, change.HP)
	return n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Debug().Msg("telegram notification sent")
	return nil
}

func shorten(v string) string {
	if len(v) <= 12 {
		return v
	}
	return v[:12] + "..."
}

// LogSink writes events to the application log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a logging sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify_log").Logger()}
}

// DonationAccepted logs the donation.
func (s *LogSink) DonationAccepted(_ context.Context, event ledger.DonationEvent) error {
	s.logger.Info().Str("signature", event.Signature).
		Str("amount_sol", event.Amount.String()).
		Int64("hp_added", event.Credit).
		Str("from", event.Counterparty).
		Msg("donation accepted")
	return nil
}

// PhaseChanged logs the transition.
func (s *LogSink) PhaseChanged(_ context.Context, change PhaseChange) error {
	s.logger.Info().Str("from", change.From).Str("to", change.To).
		Int64("hp", change.HP).Msg("phase changed")
	return nil
}

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = (*TelegramNotifier)(nil)
	_ Sink = (*LogSink)(nil)
)
