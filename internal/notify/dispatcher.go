package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blackbear10000/price-monitor/internal/metrics"
	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

const fallbackChannelName = "local-file"

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Channel   Channel
	Fallback  FallbackSink
	History   storage.NotificationLog
	Triggers  storage.TriggerStore
	QueueSize int
	Policy    RetryPolicy
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Dispatcher delivers trigger records on a dedicated worker so slow or
// failing delivery never delays evaluation. The queue is bounded: when the
// primary channel is persistently down, overflow goes straight to the
// fallback sink instead of growing memory.
type Dispatcher struct {
	channel  Channel
	fallback FallbackSink
	history  storage.NotificationLog
	triggers storage.TriggerStore
	queue    chan storage.TriggerRecord
	policy   RetryPolicy
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	now := cfg.Now
	if now == nil {
		now = timeutil.Now
	}
	policy := cfg.Policy
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Dispatcher{
		channel:  cfg.Channel,
		fallback: cfg.Fallback,
		history:  cfg.History,
		triggers: cfg.Triggers,
		queue:    make(chan storage.TriggerRecord, size),
		policy:   policy,
		now:      now,
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch enqueues a trigger record for asynchronous delivery. A full queue
// routes the record directly to the fallback sink.
func (d *Dispatcher) Dispatch(ctx context.Context, record storage.TriggerRecord) {
	select {
	case d.queue <- record:
		metrics.QueueDepth.Set(float64(len(d.queue)))
	default:
		d.logger.Warn().Int64("record_id", record.ID).Msg("dispatch queue full; routing to fallback sink")
		d.persistFallback(ctx, record, RenderTrigger(record), 0)
	}
}

// Run drains the queue until ctx is cancelled, then flushes any queued
// records to the fallback sink so none are lost across shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("queue_capacity", cap(d.queue)).Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.flush(ctx.Err())
			return ctx.Err()
		case record := <-d.queue:
			metrics.QueueDepth.Set(float64(len(d.queue)))
			d.DeliverNow(ctx, record)
		}
	}
}

// DeliverNow delivers one record synchronously: primary channel with bounded
// retry, then the fallback sink on exhaustion. The record's notification-sent
// flag flips only once either path has confirmed durability.
func (d *Dispatcher) DeliverNow(ctx context.Context, record storage.TriggerRecord) {
	attemptID := uuid.NewString()
	text := RenderTrigger(record)
	logger := d.logger.With().
		Str("attempt_id", attemptID).
		Int64("record_id", record.ID).
		Str("subject_id", record.SubjectID).
		Logger()

	// No primary channel configured: local files are the delivery path.
	if d.channel == nil {
		d.persistFallback(ctx, record, text, 0)
		return
	}

	retries, err := d.policy.Execute(ctx, func(ctx context.Context) error {
		return d.channel.Send(ctx, text)
	})
	if retries > 0 {
		metrics.NotificationRetries.Add(float64(retries))
	}

	if err == nil {
		logger.Info().Int("retries", retries).Msg("notification delivered")
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		d.appendHistory(ctx, record.ID, d.channel.Name(), text, "sent", "", retries)
		d.markNotified(ctx, record)
		return
	}

	logger.Error().Err(err).Int("retries", retries).Msg("primary delivery exhausted")
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	d.appendHistory(ctx, record.ID, d.channel.Name(), text, "failed", err.Error(), retries)

	d.persistFallback(ctx, record, text, retries)
}

func (d *Dispatcher) persistFallback(ctx context.Context, record storage.TriggerRecord, text string, retries int) {
	if err := d.fallback.Persist(ctx, record, text); err != nil {
		// The only unrecoverable case: the alert may be lost. Surfaced via
		// the fallback-failure counter rather than swallowed.
		metrics.FallbackFailures.Inc()
		d.logger.Error().Err(err).Int64("record_id", record.ID).Msg("fallback sink write failed; alert may be lost")
		return
	}
	metrics.FallbackWrites.Inc()
	metrics.NotificationsTotal.WithLabelValues("fallback").Inc()
	d.appendHistory(ctx, record.ID, fallbackChannelName, text, "fallback", "", retries)
	d.markNotified(ctx, record)
}

func (d *Dispatcher) markNotified(ctx context.Context, record storage.TriggerRecord) {
	if d.triggers == nil || record.ID == 0 {
		return
	}
	if err := d.triggers.MarkTriggerNotified(ctx, record.ID, d.now()); err != nil {
		d.logger.Error().Err(err).Int64("record_id", record.ID).Msg("failed to mark trigger notified")
	}
}

func (d *Dispatcher) appendHistory(ctx context.Context, recordID int64, channel, content, status, errMsg string, retries int) {
	if d.history == nil {
		return
	}
	entry := storage.NotificationEntry{
		RecordID:   recordID,
		Channel:    channel,
		Content:    content,
		Status:     status,
		Error:      errMsg,
		RetryCount: retries,
	}
	if err := d.history.AppendNotification(ctx, entry); err != nil {
		d.logger.Error().Err(err).Int64("record_id", recordID).Msg("failed to append notification history")
	}
}

// flush routes everything still queued to the fallback sink. Uses a fresh
// context because the run context is already cancelled.
func (d *Dispatcher) flush(cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for {
		select {
		case record := <-d.queue:
			d.persistFallback(ctx, record, RenderTrigger(record), 0)
			flushed++
		default:
			if flushed > 0 {
				d.logger.Warn().Int("flushed", flushed).AnErr("cause", cause).Msg("queued alerts flushed to fallback sink on shutdown")
			}
			metrics.QueueDepth.Set(0)
			return
		}
	}
}
