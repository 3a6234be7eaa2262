package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPSourceOptions parameterise the polling transport.
type HTTPSourceOptions struct {
	BaseURL string
	RoomID  string
	Timeout time.Duration
}

// HTTPSource polls an HTTP chat proxy for recent messages. The upstream
// websocket is fronted by an anti-bot proxy, so polling is the only reliable
// transport.
type HTTPSource struct {
	opts   HTTPSourceOptions
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPSource constructs the polling transport.
func NewHTTPSource(opts HTTPSourceOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "chat_source").Logger(),
	}
}

type rawMessage struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type messagesResponse struct {
	Messages []rawMessage `json:"messages"`
}

// Fetch retrieves one batch of recent messages, oldest first.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Message, error) {
	body, err := json.Marshal(map[string]string{"roomId": s.opts.RoomID})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.opts.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chat: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat backend status %d", resp.StatusCode)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	sort.Slice(decoded.Messages, func(i, j int) bool {
		return decoded.Messages[i].Timestamp < decoded.Messages[j].Timestamp
	})

	messages := make([]Message, 0, len(decoded.Messages))
	for _, raw := range decoded.Messages {
		id := raw.ID
		if id == "" {
			// Some proxies omit ids; synthesize a stable-enough one.
			id = uuid.NewString()
		}
		messages = append(messages, Message{
			ID:     id,
			Author: raw.User,
			Text:   raw.Message,
			At:     time.Unix(raw.Timestamp, 0).UTC(),
		})
	}
	return messages, nil
}

var _ Source = (*HTTPSource)(nil)
