// Package service wires the pipeline loops together: the decay timer, the
// wallet poll, the push trigger, and the optional chat poll.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"octowatcher/internal/chat"
	"octowatcher/internal/monitor"
	"octowatcher/internal/scheduler"
	"octowatcher/internal/solana"
	"octowatcher/internal/vitality"
)

// Options bundle the loop cadences.
type Options struct {
	PollInterval     time.Duration
	DecayPeriod      time.Duration
	ChatPollInterval time.Duration
}

// Service runs the long-lived loops. The poll loop is the correctness
// backstop; the push subscriber only shortens latency and may die without
// consequence.
type Service struct {
	opts       Options
	watcher    *monitor.Watcher
	machine    *vitality.Machine
	subscriber *solana.Subscriber // nil when push is disabled
	chatSource chat.Source        // nil when chat is disabled
	feed       *chat.Feed
	logger     zerolog.Logger

	pushTrigger chan struct{}
}

// New constructs the service. subscriber, chatSource, and feed may be nil.
func New(opts Options, watcher *monitor.Watcher, machine *vitality.Machine, subscriber *solana.Subscriber, chatSource chat.Source, feed *chat.Feed, logger zerolog.Logger) *Service {
	return &Service{
		opts:        opts,
		watcher:     watcher,
		machine:     machine,
		subscriber:  subscriber,
		chatSource:  chatSource,
		feed:        feed,
		logger:      logger.With().Str("component", "service").Logger(),
		pushTrigger: make(chan struct{}, 1),
	}
}

// RequestSync asks the watcher loop to run a sync as soon as possible. Safe
// to call from any goroutine; coalesces while a sync is pending.
func (s *Service) RequestSync() {
	select {
	case s.pushTrigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, driving every configured loop.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("loop", name).Msg("loop terminated")
			}
		}()
	}

	decaySched := scheduler.New(scheduler.Options{
		Interval:     s.opts.DecayPeriod,
		AlignToClock: true,
		Name:         "decay_scheduler",
	}, s.logger)
	run("decay", func(ctx context.Context) error {
		return decaySched.Run(ctx, func(_ context.Context, _ time.Time) error {
			snap := s.machine.Tick()
			s.logger.Debug().Int64("hp", snap.HP).Str("phase", snap.Phase.String()).Msg("decay tick")
			return nil
		})
	})

	pollSched := scheduler.New(scheduler.Options{
		Interval: s.opts.PollInterval,
		Name:     "poll_scheduler",
	}, s.logger)
	run("poll", func(ctx context.Context) error {
		return pollSched.Run(ctx, func(ctx context.Context, _ time.Time) error {
			return s.watcher.Sync(ctx)
		})
	})

	run("push-sync", s.runPushSync)

	if s.subscriber != nil {
		run("subscriber", s.subscriber.Run)
	}

	if s.chatSource != nil && s.feed != nil {
		chatSched := scheduler.New(scheduler.Options{
			Interval: s.opts.ChatPollInterval,
			Name:     "chat_scheduler",
		}, s.logger)
		run("chat", func(ctx context.Context) error {
			return chatSched.Run(ctx, s.pollChat)
		})
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// runPushSync drains push triggers into watcher syncs. Failures are logged
// and left for the next poll tick to retry.
func (s *Service) runPushSync(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.pushTrigger:
			if err := s.watcher.Sync(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("push-triggered sync failed; poll will retry")
			}
		}
	}
}

func (s *Service) pollChat(ctx context.Context, _ time.Time) error {
	messages, err := s.chatSource.Fetch(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("chat fetch failed")
		return nil
	}
	s.feed.Append(messages)
	return nil
}
