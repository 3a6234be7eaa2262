package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"octowatcher/internal/api"
	"octowatcher/internal/chat"
	"octowatcher/internal/config"
	"octowatcher/internal/ledger"
	"octowatcher/internal/metrics"
	"octowatcher/internal/monitor"
	"octowatcher/internal/notify"
	"octowatcher/internal/service"
	"octowatcher/internal/solana"
	"octowatcher/internal/storage"
	"octowatcher/internal/vitality"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newClient() *solana.Client {
	return solana.NewClient(solana.ClientOptions{
		RPCURL:    a.Config.Wallet.RPCURL,
		Timeout:   a.Config.Wallet.RequestTimeout,
		UserAgent: a.Config.App.Name + "/1.0",
	}, a.Logger)
}

func (a *App) newNotifier() notify.Sink {
	sinks := []notify.Sink{notify.NewLogSink(a.Logger)}
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		sinks = append(sinks, notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notify.NewFanout(a.Logger, sinks...)
}

func (a *App) newMachine() *vitality.Machine {
	return vitality.New(vitality.Options{
		MaxHP:      a.Config.Vitality.MaxHP,
		InitialHP:  a.Config.Vitality.InitialHP,
		ThrivingHP: a.Config.Vitality.ThrivingHP,
		CriticalHP: a.Config.Vitality.CriticalHP,
	}, a.Logger)
}

func (a *App) minimumSOL() decimal.Decimal {
	return decimal.NewFromFloat(a.Config.Exchange.MinimumSOL)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var ledgerStore ledger.Store
	var donationStore storage.DonationStore
	if store != nil {
		ledgerStore = store
		donationStore = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; processed signatures will not survive a restart")
		ledgerStore = ledger.NewMemStore()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	notifier := a.newNotifier()

	machine := a.newMachine()
	if store != nil {
		snap, loadErr := store.LoadVitality(ctx)
		if loadErr != nil {
			return loadErr
		}
		if snap != nil {
			machine.Restore(snap.HP)
			a.Logger.Info().Int64("hp", snap.HP).Msg("vitality restored from snapshot")
		}
	}
	machine.SetSnapshotHook(func(snap vitality.Snapshot) {
		m.SetVitality(snap.HP, snap.Phase.String())
		if store == nil {
			return
		}
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer saveCancel()
		if saveErr := store.SaveVitality(saveCtx, storage.VitalitySnapshot{
			HP:        snap.HP,
			Phase:     snap.Phase.String(),
			UpdatedAt: time.Now().UTC(),
		}); saveErr != nil {
			a.Logger.Error().Err(saveErr).Msg("vitality snapshot save failed")
		}
	})
	machine.SetPhaseHook(func(oldPhase, newPhase vitality.Phase, hp int64) {
		noteCtx, noteCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer noteCancel()
		_ = notifier.PhaseChanged(noteCtx, notify.PhaseChange{
			From: oldPhase.String(),
			To:   newPhase.String(),
			HP:   hp,
		})
	})
	initial := machine.Snapshot()
	m.SetVitality(initial.HP, initial.Phase.String())

	led := ledger.New(ledgerStore, machine, a.minimumSOL(), a.Logger)
	led.SetDonationHook(func(event ledger.DonationEvent) {
		noteCtx, noteCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer noteCancel()
		_ = notifier.DonationAccepted(noteCtx, event)
	})

	client := a.newClient()
	watcher := monitor.New(
		&countingSource{inner: client, metrics: m},
		&countingSubmitter{inner: led, metrics: m},
		monitor.Options{
			Address:        a.Config.Wallet.Address,
			SignatureLimit: a.Config.Wallet.SignatureLimit,
		},
		a.Logger,
	)

	var feed *chat.Feed
	var chatSource chat.Source
	if a.Config.Chat.Enabled {
		feed = chat.NewFeed(a.Config.Chat.KeepMessages)
		chatSource = chat.NewHTTPSource(chat.HTTPSourceOptions{
			BaseURL: a.Config.Chat.BaseURL,
			RoomID:  a.Config.Chat.RoomID,
		}, a.Logger)
	}

	var apiServer *api.Server
	if a.Config.Server.Enabled {
		apiServer = api.NewServer(api.Options{
			Listen:  a.Config.Server.Listen,
			Address: a.Config.Wallet.Address,
			Metrics: a.Config.Server.Metrics,
		}, machine, donationStore, feed, a.Logger)
	}

	watcher.SetBalanceHook(func(sol decimal.Decimal) {
		m.SetBalance(sol)
		if apiServer != nil {
			apiServer.SetBalance(sol)
		}
	})

	var svc *service.Service
	var subscriber *solana.Subscriber
	if a.Config.Wallet.SubscribeEnabled {
		subscriber = solana.NewSubscriber(solana.SubscriberOptions{
			WSURL:         a.Config.ResolveWSURL(),
			Address:       a.Config.Wallet.Address,
			MaxReconnects: a.Config.Wallet.MaxReconnects,
			BaseWait:      a.Config.Wallet.ReconnectBaseWait,
			MaxWait:       a.Config.Wallet.ReconnectMaxWait,
		}, func() { svc.RequestSync() }, a.Logger)
	}

	svc = service.New(service.Options{
		PollInterval:     a.Config.Wallet.PollInterval,
		DecayPeriod:      a.Config.Vitality.DecayPeriod,
		ChatPollInterval: a.Config.Chat.PollInterval,
	}, watcher, machine, subscriber, chatSource, feed, a.Logger)

	if apiServer != nil {
		go func() {
			if srvErr := apiServer.Run(ctx); srvErr != nil {
				a.Logger.Error().Err(srvErr).Msg("http server terminated")
			}
		}()
	}

	a.Logger.Info().Str("address", a.Config.Wallet.Address).Msg("starting octo monitor")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("octo monitor stopped")
	return nil
}

// countingSource instruments the RPC client with the error counter.
type countingSource struct {
	inner   monitor.TransactionSource
	metrics *metrics.Metrics
}

func (c *countingSource) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	balance, err := c.inner.GetBalance(ctx, address)
	if err != nil {
		c.metrics.RPCErrors.Inc()
	}
	return balance, err
}

func (c *countingSource) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error) {
	sigs, err := c.inner.GetSignaturesForAddress(ctx, address, limit)
	if err != nil {
		c.metrics.RPCErrors.Inc()
	}
	return sigs, err
}

func (c *countingSource) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	tx, err := c.inner.GetTransaction(ctx, signature)
	if err != nil {
		c.metrics.RPCErrors.Inc()
	}
	return tx, err
}

// countingSubmitter instruments ledger submissions.
type countingSubmitter struct {
	inner   monitor.Submitter
	metrics *metrics.Metrics
}

func (c *countingSubmitter) Submit(ctx context.Context, transfer ledger.IncomingTransfer) (ledger.CreditResult, error) {
	result, err := c.inner.Submit(ctx, transfer)
	if err != nil {
		return result, err
	}
	switch result.Status {
	case ledger.AlreadyProcessed:
		c.metrics.DonationsDuplicate.Inc()
	case ledger.Credited:
		c.metrics.DonationsProcessed.Inc()
		if result.Credit > 0 {
			c.metrics.HPCredited.Add(float64(result.Credit))
		}
	}
	return result, err
}

// ExportOptions hold parameters for exporting donation history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Limit  int
	DryRun bool
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	AmountSOL float64
	Count     int
}
