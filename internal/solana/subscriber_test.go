package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/logging"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	s := NewSubscriber(SubscriberOptions{
		BaseWait: time.Second,
		MaxWait:  30 * time.Second,
	}, func() {}, logging.Nop())

	assert.Equal(t, time.Second, s.backoff(1))
	assert.Equal(t, 2*time.Second, s.backoff(2))
	assert.Equal(t, 16*time.Second, s.backoff(5))
	assert.Equal(t, 30*time.Second, s.backoff(6))
	assert.Equal(t, 30*time.Second, s.backoff(20))
}

func TestSubscriberInvokesCallbackOnNotification(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Expect the accountSubscribe request before notifying.
		var req map[string]any
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "accountSubscribe", req["method"])

		payload, _ := json.Marshal(map[string]any{"method": "accountNotification"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	notified := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(SubscriberOptions{
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Address: "wallet-addr",
	}, func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	}, logging.Nop())

	done := make(chan struct{})
	go func() {
		assert.NoError(t, sub.Run(ctx))
		close(done)
	}()

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("notification callback never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop on cancel")
	}
}

func TestSubscriberGivesUpAfterReconnectBudget(t *testing.T) {
	// Nothing listens here; every dial fails immediately.
	sub := NewSubscriber(SubscriberOptions{
		WSURL:         "ws://127.0.0.1:1",
		Address:       "wallet-addr",
		MaxReconnects: 2,
		BaseWait:      time.Millisecond,
		MaxWait:       2 * time.Millisecond,
	}, func() {}, logging.Nop())

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not abandon the push channel")
	}
}
