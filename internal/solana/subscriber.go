package solana

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SubscriberOptions parameterise the push channel.
type SubscriberOptions struct {
	WSURL         string
	Address       string
	MaxReconnects int
	BaseWait      time.Duration
	MaxWait       time.Duration
}

// Subscriber maintains a best-effort accountSubscribe websocket connection
// and invokes a callback on every account-change notification. It is a
// latency optimization only: the poll loop remains the correctness backstop,
// so the subscriber may fail silently forever without affecting crediting.
type Subscriber struct {
	opts     SubscriberOptions
	logger   zerolog.Logger
	onChange func()
}

// NewSubscriber constructs a push subscriber. onChange is called from the
// read loop goroutine whenever the provider reports an account change.
func NewSubscriber(opts SubscriberOptions, onChange func(), logger zerolog.Logger) *Subscriber {
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 10
	}
	if opts.BaseWait <= 0 {
		opts.BaseWait = time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	return &Subscriber{
		opts:     opts,
		logger:   logger.With().Str("component", "solana_subscriber").Logger(),
		onChange: onChange,
	}
}

type wsNotification struct {
	Method string `json:"method"`
}

// Run maintains the subscription until ctx is cancelled or the reconnect
// budget is exhausted. It always returns nil: push failure is degraded
// latency, never a process failure.
func (s *Subscriber) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return nil
		}

		attempts++
		if attempts > s.opts.MaxReconnects {
			s.logger.Warn().Int("attempts", attempts-1).
				Msg("push channel abandoned; polling continues")
			return nil
		}

		wait := s.backoff(attempts)
		s.logger.Warn().Err(err).Dur("retry_in", wait).Int("attempt", attempts).
			Msg("push channel lost; reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Subscriber) backoff(attempt int) time.Duration {
	wait := s.opts.BaseWait << (attempt - 1)
	if wait > s.opts.MaxWait || wait <= 0 {
		wait = s.opts.MaxWait
	}
	return wait
}

func (s *Subscriber) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.opts.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subscribe := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "accountSubscribe",
		"params": []any{
			s.opts.Address,
			map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return err
	}

	s.logger.Info().Str("address", s.opts.Address).Msg("push subscription established")

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var note wsNotification
		if err := json.Unmarshal(payload, &note); err != nil {
			s.logger.Debug().Err(err).Msg("unparseable push message ignored")
			continue
		}
		if note.Method == "accountNotification" {
			s.logger.Debug().Msg("account change notified")
			s.onChange()
		}
	}
}
