// Package api exposes the read-only HTTP status surface: current vitality,
// recent donations, the chat feed, and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"octowatcher/internal/chat"
	"octowatcher/internal/storage"
	"octowatcher/internal/vitality"
)

// Options parameterise the server.
type Options struct {
	Listen  string
	Address string // monitored wallet, echoed in /api/state
	Metrics bool
}

// Server is the HTTP status server.
type Server struct {
	opts      Options
	machine   *vitality.Machine
	donations storage.DonationStore // nil when persistence is disabled
	feed      *chat.Feed            // nil when chat is disabled
	logger    zerolog.Logger

	balanceMu sync.Mutex
	balance   decimal.Decimal
	hasBal    bool
}

// NewServer constructs the status server. donations and feed may be nil.
func NewServer(opts Options, machine *vitality.Machine, donations storage.DonationStore, feed *chat.Feed, logger zerolog.Logger) *Server {
	return &Server{
		opts:      opts,
		machine:   machine,
		donations: donations,
		feed:      feed,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetBalance records the most recently observed wallet balance.
func (s *Server) SetBalance(sol decimal.Decimal) {
	s.balanceMu.Lock()
	s.balance = sol
	s.hasBal = true
	s.balanceMu.Unlock()
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/donations", s.handleDonations)
		r.Get("/chat/recent", s.handleChatRecent)
	})

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.opts.Listen).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type stateResponse struct {
	Address    string  `json:"address"`
	HP         int64   `json:"hp"`
	MaxHP      int64   `json:"max_hp"`
	Phase      string  `json:"phase"`
	BalanceSOL *string `json:"balance_sol,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.machine.Snapshot()
	resp := stateResponse{
		Address: s.opts.Address,
		HP:      snap.HP,
		MaxHP:   snap.MaxHP,
		Phase:   snap.Phase.String(),
	}

	s.balanceMu.Lock()
	if s.hasBal {
		bal := s.balance.String()
		resp.BalanceSOL = &bal
	}
	s.balanceMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type donationResponse struct {
	Signature    string `json:"signature"`
	AmountSOL    string `json:"amount_sol"`
	HPAdded      int64  `json:"hp_added"`
	Counterparty string `json:"counterparty"`
	ObservedAt   string `json:"observed_at"`
}

func (s *Server) handleDonations(w http.ResponseWriter, r *http.Request) {
	if s.donations == nil {
		writeJSON(w, http.StatusOK, []donationResponse{})
		return
	}

	limit := queryLimit(r, 20, 200)
	records, err := s.donations.ListRecentDonations(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("donation listing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "donation history unavailable"})
		return
	}

	out := make([]donationResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, donationResponse{
			Signature:    rec.Signature,
			AmountSOL:    rec.Amount.String(),
			HPAdded:      rec.Credit,
			Counterparty: rec.Counterparty,
			ObservedAt:   rec.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChatRecent(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, []chat.Message{})
		return
	}
	limit := queryLimit(r, 50, 200)
	writeJSON(w, http.StatusOK, s.feed.Recent(limit))
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
