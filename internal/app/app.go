package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackbear10000/price-monitor/internal/alerting"
	"github.com/blackbear10000/price-monitor/internal/config"
	"github.com/blackbear10000/price-monitor/internal/fetcher"
	"github.com/blackbear10000/price-monitor/internal/notify"
	"github.com/blackbear10000/price-monitor/internal/service"
	"github.com/blackbear10000/price-monitor/internal/storage"
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

func (a *App) newFetcher() fetcher.PriceFetcher {
	return fetcher.NewAPI(fetcher.APIOptions{
		Endpoint:  a.Config.Feed.Endpoint,
		Quote:     a.Config.Feed.Quote,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newChannel() notify.Channel {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return notify.NewTelegramChannel(cfg.BotToken, cfg.ChatIDs, cfg.APIBase, cfg.RequestTimeout, a.Logger)
	}
	return nil
}

func (a *App) newEvaluator(store *storage.Store) *alerting.Evaluator {
	cooldowns := alerting.NewCooldownTracker(store, nil, a.Logger)
	dedup := alerting.NewTrendDedup(
		store,
		a.Config.Evaluation.DedupWindow,
		decimalFromFloat(a.Config.Evaluation.DedupTolerancePct),
		nil,
		a.Logger,
	)

	return alerting.NewEvaluator(alerting.Config{
		Subjects:  store,
		Prices:    store,
		Rules:     store,
		Triggers:  store,
		Cooldowns: cooldowns,
		Dedup:     dedup,
		Workers:   a.Config.Evaluation.Workers,
		Logger:    a.Logger,
	})
}

func (a *App) newDispatcher(store *storage.Store) (*notify.Dispatcher, error) {
	if !a.Config.Alerting.Enabled {
		return nil, nil
	}

	sink, err := notify.NewFileSink(a.Config.Alerting.FallbackDir, a.Logger)
	if err != nil {
		return nil, err
	}

	return notify.NewDispatcher(notify.DispatcherConfig{
		Channel:   a.newChannel(),
		Fallback:  sink,
		History:   store,
		Triggers:  store,
		QueueSize: a.Config.Alerting.QueueSize,
		Policy: notify.RetryPolicy{
			MaxRetries: a.Config.Alerting.MaxRetries,
			BaseDelay:  a.Config.Alerting.RetryBaseDelay,
			MaxDelay:   a.Config.Alerting.RetryMaxDelay,
			Retryable:  notify.IsTransient,
		},
		Logger: a.Logger,
	}), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn 必须配置")
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
	defer closeStore()

	if err := a.Seed(ctx, store); err != nil {
		return err
	}

	dispatcher, err := a.newDispatcher(store)
	if err != nil {
		return err
	}
	if dispatcher == nil {
		a.Logger.Warn().Msg("alerting disabled; triggers will be recorded but not delivered")
	}

	evaluator := a.newEvaluator(store)
	refresher := service.NewRefresher(a.newFetcher(), store, store, a.Config.Feed.MaxConcurrent, a.Logger)
	cleaner := service.NewCleaner(store, store, fallbackSinkOrNil(dispatcher, a), a.Config.Retention.Days, a.Config.Retention.FallbackDays, a.Logger)

	svc := service.New(a.Config, evaluator, dispatcher, refresher, cleaner, store, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// fallbackSinkOrNil gives the cleaner its own sink handle when alerting is
// enabled so that stale fallback files are pruned even if dispatch never runs.
func fallbackSinkOrNil(dispatcher *notify.Dispatcher, a *App) *notify.FileSink {
	if dispatcher == nil {
		return nil
	}
	sink, err := notify.NewFileSink(a.Config.Alerting.FallbackDir, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("fallback dir unavailable for cleanup")
		return nil
	}
	return sink
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	SubjectID string
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

// CheckOptions configure an on-demand evaluation pass.
type CheckOptions struct {
	SubjectID string
	Notify    bool
}
