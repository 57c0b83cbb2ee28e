package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackbear10000/price-monitor/internal/storage"
	"github.com/blackbear10000/price-monitor/internal/timeutil"
)

// FallbackSink durably persists an alert when primary delivery is exhausted.
// Implementations must not fail on well-formed input except for genuine I/O
// errors; this is the last line of defence against losing an alert.
type FallbackSink interface {
	Persist(ctx context.Context, record storage.TriggerRecord, text string) error
}

// FileSink writes alerts into a local directory, one JSON document plus one
// human-readable text file per alert, as the operator's offline record.
type FileSink struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewFileSink creates the directory if needed and returns the sink.
func NewFileSink(dir string, logger zerolog.Logger) (*FileSink, error) {
	if dir == "" {
		dir = filepath.Join("data", "alerts")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	return &FileSink{
		dir:    dir,
		now:    timeutil.Now,
		logger: logger.With().Str("component", "fallback_sink").Logger(),
	}, nil
}

type fallbackDoc struct {
	RecordID      int64             `json:"record_id"`
	RuleID        string            `json:"rule_id"`
	SubjectID     string            `json:"subject_id"`
	SubjectSymbol string            `json:"subject_symbol"`
	RuleType      storage.RuleType  `json:"rule_type"`
	Condition     storage.Condition `json:"condition"`
	Target        string            `json:"target"`
	CurrentPrice  string            `json:"current_price"`
	FiredAt       string            `json:"fired_at"`
	SavedAt       string            `json:"saved_at"`
	Text          string            `json:"text"`
}

// Persist writes the alert to disk. Both files share a timestamped name so
// they sort chronologically in a directory listing.
func (s *FileSink) Persist(ctx context.Context, record storage.TriggerRecord, text string) error {
	_ = ctx

	stem := fmt.Sprintf("%s_%s_%s_%s",
		s.now().Format("2006-01-02_15-04-05"),
		sanitizeName(record.SubjectSymbol),
		record.RuleType,
		record.Condition,
	)

	doc := fallbackDoc{
		RecordID:      record.ID,
		RuleID:        record.RuleID,
		SubjectID:     record.SubjectID,
		SubjectSymbol: record.SubjectSymbol,
		RuleType:      record.RuleType,
		Condition:     record.Condition,
		Target:        record.Target.String(),
		CurrentPrice:  record.CurrentPrice.String(),
		FiredAt:       timeutil.Format(record.FiredAt),
		SavedAt:       timeutil.Format(s.now()),
		Text:          text,
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fallback alert: %w", err)
	}

	jsonPath := filepath.Join(s.dir, stem+".json")
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return fmt.Errorf("write fallback alert: %w", err)
	}

	textPath := filepath.Join(s.dir, stem+".txt")
	if err := os.WriteFile(textPath, []byte(text+"\n"), 0o644); err != nil {
		// The JSON copy is already durable; the text rendering is convenience.
		s.logger.Error().Err(err).Str("path", textPath).Msg("failed to write text rendering")
	}

	s.logger.Info().Str("path", jsonPath).Msg("alert persisted to fallback sink")
	return nil
}

// CleanupOld deletes alert files older than the cutoff and reports how many
// were removed.
func (s *FileSink) CleanupOld(olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read fallback dir: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				s.logger.Error().Err(err).Str("file", name).Msg("failed to delete old alert file")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

func sanitizeName(v string) string {
	if v == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}

var _ FallbackSink = (*FileSink)(nil)
