package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoSample indicates no price sample satisfies the query.
	ErrNoSample = errors.New("storage: no price sample")
)

const (
	upsertSubjectSQL = `INSERT INTO subjects (id, symbol, description, active, priority)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE
    SET symbol = EXCLUDED.symbol,
        description = EXCLUDED.description,
        priority    = EXCLUDED.priority;`

	getSubjectSQL = `SELECT id, symbol, description, active, priority, added_at
    FROM subjects WHERE id = $1;`

	listActiveSubjectsSQL = `SELECT id, symbol, description, active, priority, added_at
    FROM subjects
    WHERE active
    ORDER BY priority, id;`

	insertPriceSampleSQL = `INSERT INTO price_samples (subject_id, price, ts, source)
    VALUES ($1,$2,$3,$4);`

	latestPriceSQL = `SELECT subject_id, price, ts, source
    FROM price_samples
    WHERE subject_id = $1
    ORDER BY ts DESC
    LIMIT 1;`

	priceAtSQL = `SELECT subject_id, price, ts, source
    FROM price_samples
    WHERE subject_id = $1
      AND ts <= $2
    ORDER BY ts DESC
    LIMIT 1;`

	listSamplesBetweenSQL = `SELECT subject_id, price, ts, source
    FROM price_samples
    WHERE subject_id = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts;`

	deleteSamplesBeforeSQL = `DELETE FROM price_samples WHERE ts < $1;`

	upsertRuleSQL = `INSERT INTO rules (
        id, subject_id, condition_json, enabled, one_shot, cooldown_seconds, priority, description
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (id) DO UPDATE
    SET subject_id       = EXCLUDED.subject_id,
        condition_json   = EXCLUDED.condition_json,
        one_shot         = EXCLUDED.one_shot,
        cooldown_seconds = EXCLUDED.cooldown_seconds,
        priority         = EXCLUDED.priority,
        description      = EXCLUDED.description,
        updated_at       = now();`

	listRulesSQL = `SELECT id, subject_id, condition_json, enabled, one_shot, cooldown_seconds, priority, description, last_triggered
    FROM rules
    WHERE enabled
      AND subject_id IS NOT DISTINCT FROM $1
    ORDER BY created_at, id;`

	setRuleEnabledSQL = `UPDATE rules SET enabled = $2, updated_at = now() WHERE id = $1;`

	setRuleLastFiredSQL = `UPDATE rules SET last_triggered = $2, updated_at = now() WHERE id = $1;`

	getCooldownSQL = `SELECT last_fired FROM rule_subject_cooldowns
    WHERE rule_id = $1 AND subject_id = $2;`

	upsertCooldownSQL = `INSERT INTO rule_subject_cooldowns (rule_id, subject_id, last_fired, updated_at)
    VALUES ($1,$2,$3,now())
    ON CONFLICT (rule_id, subject_id) DO UPDATE
    SET last_fired = EXCLUDED.last_fired,
        updated_at = now();`

	deleteCooldownSQL = `DELETE FROM rule_subject_cooldowns
    WHERE rule_id = $1 AND subject_id = $2;`

	insertTriggerSQL = `INSERT INTO trigger_records (
        rule_id, subject_id, rule_type, condition, target, trend_json,
        current_price, priority, description, fired_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    RETURNING id;`

	recentTriggersSQL = `SELECT
        t.id, t.rule_id, t.subject_id, COALESCE(s.symbol, ''), t.rule_type, t.condition,
        t.target, t.trend_json, t.current_price, t.priority, t.description,
        t.fired_at, t.notification_sent, t.notification_time
    FROM trigger_records t
    LEFT JOIN subjects s ON s.id = t.subject_id
    WHERE t.rule_id = $1
      AND t.subject_id = $2
      AND t.condition = $3
      AND t.fired_at >= $4
    ORDER BY t.fired_at DESC;`

	listRecentTriggersSQL = `SELECT
        t.id, t.rule_id, t.subject_id, COALESCE(s.symbol, ''), t.rule_type, t.condition,
        t.target, t.trend_json, t.current_price, t.priority, t.description,
        t.fired_at, t.notification_sent, t.notification_time
    FROM trigger_records t
    LEFT JOIN subjects s ON s.id = t.subject_id
    ORDER BY t.fired_at DESC
    LIMIT $1;`

	markTriggerNotifiedSQL = `UPDATE trigger_records
    SET notification_sent = TRUE, notification_time = $2
    WHERE id = $1;`

	deleteTriggersBeforeSQL = `DELETE FROM trigger_records WHERE fired_at < $1;`

	insertNotificationSQL = `INSERT INTO notification_history (
        record_id, channel, content, status, error_message, retry_count
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SubjectStore exposes read access to monitored subjects.
type SubjectStore interface {
	ListActiveSubjects(ctx context.Context) ([]Subject, error)
	GetSubject(ctx context.Context, id string) (Subject, error)
	UpsertSubject(ctx context.Context, subject Subject) error
}

// PriceStore defines the evaluator's view of the price time series.
type PriceStore interface {
	Latest(ctx context.Context, subjectID string) (PriceSample, error)
	At(ctx context.Context, subjectID string, ts time.Time) (PriceSample, error)
	InsertSample(ctx context.Context, sample PriceSample) error
	ListSamplesBetween(ctx context.Context, subjectID string, from, to time.Time) ([]PriceSample, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// RuleStore defines operations on rule definitions.
type RuleStore interface {
	GlobalRules(ctx context.Context) ([]Rule, error)
	SubjectRules(ctx context.Context, subjectID string) ([]Rule, error)
	UpsertRule(ctx context.Context, rule Rule) error
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error
	SetRuleLastFired(ctx context.Context, ruleID string, at time.Time) error
}

// CooldownStore persists per-(rule, subject) firing state.
type CooldownStore interface {
	LastFired(ctx context.Context, ruleID, subjectID string) (time.Time, bool, error)
	UpsertLastFired(ctx context.Context, ruleID, subjectID string, at time.Time) error
	DeleteCooldown(ctx context.Context, ruleID, subjectID string) error
}

// TriggerStore is the append-only sink for accepted firings.
type TriggerStore interface {
	AppendTrigger(ctx context.Context, record TriggerRecord) (int64, error)
	RecentTriggers(ctx context.Context, ruleID, subjectID string, condition Condition, since time.Time) ([]TriggerRecord, error)
	ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error)
	MarkTriggerNotified(ctx context.Context, recordID int64, at time.Time) error
	DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// NotificationLog records delivery outcomes, append-only.
type NotificationLog interface {
	AppendNotification(ctx context.Context, entry NotificationEntry) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates all persistence behind a single pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertSubject creates or refreshes a monitored subject.
func (s *Store) UpsertSubject(ctx context.Context, subject Subject) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	// active is only written on first insert; deactivation survives reseeding.
	if _, execErr := pool.Exec(ctx, upsertSubjectSQL,
		subject.ID, subject.Symbol, subject.Description, subject.Active, subject.Priority,
	); execErr != nil {
		return fmt.Errorf("upsert subject: %w", execErr)
	}
	return nil
}

// GetSubject fetches one subject by id.
func (s *Store) GetSubject(ctx context.Context, id string) (Subject, error) {
	pool, err := s.getPool()
	if err != nil {
		return Subject{}, err
	}
	var sub Subject
	if scanErr := pool.QueryRow(ctx, getSubjectSQL, id).Scan(
		&sub.ID, &sub.Symbol, &sub.Description, &sub.Active, &sub.Priority, &sub.AddedAt,
	); scanErr != nil {
		return Subject{}, fmt.Errorf("get subject %s: %w", id, scanErr)
	}
	return sub, nil
}

// ListActiveSubjects returns all active subjects ordered by priority.
func (s *Store) ListActiveSubjects(ctx context.Context) ([]Subject, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listActiveSubjectsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active subjects: %w", queryErr)
	}
	defer rows.Close()

	subjects := make([]Subject, 0)
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.Symbol, &sub.Description, &sub.Active, &sub.Priority, &sub.AddedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subjects, nil
}

// InsertSample appends one price observation.
func (s *Store) InsertSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertPriceSampleSQL,
		sample.SubjectID, sample.Value.String(), timeutil.Normalize(sample.Timestamp), sample.Source,
	); execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// Latest returns the most recent sample for a subject, or ErrNoSample.
func (s *Store) Latest(ctx context.Context, subjectID string) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}
	return scanPriceSampleRow(pool.QueryRow(ctx, latestPriceSQL, subjectID))
}

// At returns the most recent sample at or before ts, or ErrNoSample.
func (s *Store) At(ctx context.Context, subjectID string, ts time.Time) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}
	return scanPriceSampleRow(pool.QueryRow(ctx, priceAtSQL, subjectID, timeutil.Normalize(ts)))
}

// ListSamplesBetween lists one subject's samples within a window.
func (s *Store) ListSamplesBetween(ctx context.Context, subjectID string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, subjectID, timeutil.Normalize(from), timeutil.Normalize(to))
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// DeleteSamplesBefore removes samples older than the cutoff.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, timeutil.Normalize(olderThan))
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// UpsertRule creates or updates a rule definition. The enabled flag is only
// written on first insert so that a one-shot disable survives reseeding.
func (s *Store) UpsertRule(ctx context.Context, rule Rule) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cooldown := int64(rule.Cooldown / time.Second)
	if cooldown <= 0 {
		cooldown = 86400
	}
	if _, execErr := pool.Exec(ctx, upsertRuleSQL,
		rule.ID, rule.SubjectID, []byte(rule.Condition), rule.Enabled, rule.OneShot,
		cooldown, rule.Priority, rule.Description,
	); execErr != nil {
		return fmt.Errorf("upsert rule: %w", execErr)
	}
	return nil
}

// GlobalRules lists enabled rules not bound to any subject.
func (s *Store) GlobalRules(ctx context.Context) ([]Rule, error) {
	return s.listRules(ctx, nil)
}

// SubjectRules lists enabled rules bound to one subject.
func (s *Store) SubjectRules(ctx context.Context, subjectID string) ([]Rule, error) {
	return s.listRules(ctx, &subjectID)
}

func (s *Store) listRules(ctx context.Context, subjectID *string) ([]Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRulesSQL, subjectID)
	if queryErr != nil {
		return nil, fmt.Errorf("list rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]Rule, 0)
	for rows.Next() {
		var (
			rule            Rule
			conditionJSON   []byte
			cooldownSeconds int64
		)
		if err := rows.Scan(
			&rule.ID, &rule.SubjectID, &conditionJSON, &rule.Enabled, &rule.OneShot,
			&cooldownSeconds, &rule.Priority, &rule.Description, &rule.LastTriggered,
		); err != nil {
			return nil, err
		}
		rule.Condition = json.RawMessage(conditionJSON)
		rule.Cooldown = time.Duration(cooldownSeconds) * time.Second
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// SetRuleEnabled toggles a rule. Used for one-shot disable.
func (s *Store) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, setRuleEnabledSQL, ruleID, enabled)
	if execErr != nil {
		return fmt.Errorf("set rule enabled: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetRuleLastFired records the informational last-fired timestamp on the rule
// itself. The authoritative cooldown gate lives in rule_subject_cooldowns.
func (s *Store) SetRuleLastFired(ctx context.Context, ruleID string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setRuleLastFiredSQL, ruleID, timeutil.Normalize(at)); execErr != nil {
		return fmt.Errorf("set rule last fired: %w", execErr)
	}
	return nil
}

// LastFired reads the cooldown state of one (rule, subject) pair.
func (s *Store) LastFired(ctx context.Context, ruleID, subjectID string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var lastFired time.Time
	scanErr := pool.QueryRow(ctx, getCooldownSQL, ruleID, subjectID).Scan(&lastFired)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if scanErr != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", scanErr)
	}
	return timeutil.Normalize(lastFired), true, nil
}

// UpsertLastFired records a firing for one (rule, subject) pair.
func (s *Store) UpsertLastFired(ctx context.Context, ruleID, subjectID string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertCooldownSQL, ruleID, subjectID, timeutil.Normalize(at)); execErr != nil {
		return fmt.Errorf("upsert cooldown: %w", execErr)
	}
	return nil
}

// DeleteCooldown clears the firing state of one (rule, subject) pair.
func (s *Store) DeleteCooldown(ctx context.Context, ruleID, subjectID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteCooldownSQL, ruleID, subjectID); execErr != nil {
		return fmt.Errorf("delete cooldown: %w", execErr)
	}
	return nil
}

// AppendTrigger persists an accepted firing and returns its id.
func (s *Store) AppendTrigger(ctx context.Context, record TriggerRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var trendJSON []byte
	if record.Trend != nil {
		trendJSON, err = json.Marshal(record.Trend)
		if err != nil {
			return 0, fmt.Errorf("encode trend payload: %w", err)
		}
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertTriggerSQL,
		record.RuleID, record.SubjectID, string(record.RuleType), string(record.Condition),
		record.Target.String(), trendJSON, record.CurrentPrice.String(),
		record.Priority, record.Description, timeutil.Normalize(record.FiredAt),
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("append trigger: %w", scanErr)
	}
	return id, nil
}

// RecentTriggers lists firings of one (rule, subject, condition) since a cutoff,
// newest first. Feeds the trend-continuation filter.
func (s *Store) RecentTriggers(ctx context.Context, ruleID, subjectID string, condition Condition, since time.Time) ([]TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, recentTriggersSQL, ruleID, subjectID, string(condition), timeutil.Normalize(since))
	if queryErr != nil {
		return nil, fmt.Errorf("recent triggers: %w", queryErr)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// ListRecentTriggers lists the newest firings across all rules.
func (s *Store) ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentTriggersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent triggers: %w", queryErr)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// MarkTriggerNotified flips the notification-sent flag of one record.
func (s *Store) MarkTriggerNotified(ctx context.Context, recordID int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markTriggerNotifiedSQL, recordID, timeutil.Normalize(at))
	if execErr != nil {
		return fmt.Errorf("mark trigger notified: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteTriggersBefore removes trigger records older than the cutoff.
func (s *Store) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteTriggersBeforeSQL, timeutil.Normalize(olderThan))
	if execErr != nil {
		return 0, fmt.Errorf("delete triggers before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// AppendNotification records one delivery outcome.
func (s *Store) AppendNotification(ctx context.Context, entry NotificationEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	var errMsg interface{}
	if entry.Error != "" {
		errMsg = entry.Error
	}
	if _, execErr := pool.Exec(ctx, insertNotificationSQL,
		entry.RecordID, entry.Channel, entry.Content, entry.Status, errMsg, entry.RetryCount,
	); execErr != nil {
		return fmt.Errorf("append notification: %w", execErr)
	}
	return nil
}

func collectTriggers(rows pgx.Rows) ([]TriggerRecord, error) {
	records := make([]TriggerRecord, 0)
	for rows.Next() {
		record, scanErr := scanTrigger(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanTrigger(rows pgx.Rows) (TriggerRecord, error) {
	var (
		record     TriggerRecord
		ruleType   string
		condition  string
		targetStr  string
		trendJSON  []byte
		currentStr string
	)
	if err := rows.Scan(
		&record.ID, &record.RuleID, &record.SubjectID, &record.SubjectSymbol,
		&ruleType, &condition, &targetStr, &trendJSON, &currentStr,
		&record.Priority, &record.Description, &record.FiredAt,
		&record.NotificationSent, &record.NotificationTime,
	); err != nil {
		return TriggerRecord{}, err
	}

	record.RuleType = RuleType(ruleType)
	record.Condition = Condition(condition)

	var convErr error
	record.Target, convErr = decimal.NewFromString(targetStr)
	if convErr != nil {
		return TriggerRecord{}, fmt.Errorf("parse trigger target: %w", convErr)
	}
	record.CurrentPrice, convErr = decimal.NewFromString(currentStr)
	if convErr != nil {
		return TriggerRecord{}, fmt.Errorf("parse trigger price: %w", convErr)
	}

	if len(trendJSON) > 0 {
		var trend TrendPayload
		if err := json.Unmarshal(trendJSON, &trend); err != nil {
			return TriggerRecord{}, fmt.Errorf("decode trend payload: %w", err)
		}
		record.Trend = &trend
	}

	record.FiredAt = timeutil.Normalize(record.FiredAt)
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPriceSampleRow(row rowScanner) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)
	err := row.Scan(&sample.SubjectID, &priceStr, &sample.Timestamp, &sample.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceSample{}, ErrNoSample
	}
	if err != nil {
		return PriceSample{}, fmt.Errorf("scan price sample: %w", err)
	}
	sample.Value, err = decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	sample.Timestamp = timeutil.Normalize(sample.Timestamp)
	return sample, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	return scanPriceSampleRow(rows)
}
