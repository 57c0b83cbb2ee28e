package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/blackbear10000/price-monitor/internal/alerting"
	"github.com/blackbear10000/price-monitor/internal/config"
	"github.com/blackbear10000/price-monitor/internal/notify"
	"github.com/blackbear10000/price-monitor/internal/scheduler"
	"github.com/blackbear10000/price-monitor/internal/storage"
)

// Service orchestrates the long-running loops: price refresh, alert
// evaluation, notification dispatch, and retention cleanup.
type Service struct {
	cfg        *config.Config
	evaluator  *alerting.Evaluator
	dispatcher *notify.Dispatcher
	refresher  *Refresher
	cleaner    *Cleaner
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger
}

// New constructs the monitoring service.
func New(cfg *config.Config, evaluator *alerting.Evaluator, dispatcher *notify.Dispatcher, refresher *Refresher, cleaner *Cleaner, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		refresher:  refresher,
		cleaner:    cleaner,
		locker:     locker,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run starts every loop and blocks until ctx is cancelled or one loop fails.
func (s *Service) Run(ctx context.Context) error {
	if s.evaluator == nil {
		return fmt.Errorf("evaluator not configured")
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	if s.dispatcher != nil {
		p.Go(s.dispatcher.Run)
	}

	if s.refresher != nil {
		feedSched := scheduler.New(scheduler.Options{
			Name:           "feed_scheduler",
			Interval:       s.cfg.Feed.Interval,
			RunImmediately: true,
			StartupDelay:   s.cfg.Feed.StartupDelay,
		}, s.logger)
		p.Go(func(ctx context.Context) error {
			return feedSched.Run(ctx, s.refresher.RefreshAll)
		})
	}

	evalSched := scheduler.New(scheduler.Options{
		Name:         "eval_scheduler",
		Interval:     s.cfg.Evaluation.Interval,
		AlignToStart: true,
	}, s.logger)
	p.Go(func(ctx context.Context) error {
		return evalSched.Run(ctx, s.evaluateTick)
	})

	if s.cleaner != nil {
		cleanSched := scheduler.New(scheduler.Options{
			Name:           "cleanup_scheduler",
			Interval:       s.cfg.Retention.CleanupPeriod,
			RunImmediately: true,
		}, s.logger)
		p.Go(func(ctx context.Context) error {
			return cleanSched.Run(ctx, s.cleaner.Sweep)
		})
	}

	if s.cfg.Metrics.Listen != "" {
		p.Go(s.serveMetrics)
	}

	err := p.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// evaluateTick 执行单次评估周期并派发触发的告警。
func (s *Service) evaluateTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	records, err := s.evaluator.EvaluateCycle(ctx)
	if err != nil {
		return fmt.Errorf("evaluate cycle: %w", err)
	}

	for _, record := range records {
		if s.dispatcher == nil {
			s.logger.Info().
				Str("rule_id", record.RuleID).
				Str("subject_id", record.SubjectID).
				Msg("alert fired but dispatch is disabled")
			continue
		}
		s.dispatcher.Dispatch(ctx, record)
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	key := s.cfg.Evaluation.AdvisoryLockKey
	if key == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: s.cfg.Metrics.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("listen", s.cfg.Metrics.Listen).Msg("metrics listener started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return ctx.Err()
}
