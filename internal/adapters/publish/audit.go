package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/okian/riskgate/internal/domain/model"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLog appends every publication to a rotating JSONL file. Each line
// carries the headline fields at the top level and the full result under
// "result".
type AuditLog struct {
	rotator *lumberjack.Logger
	log     *slog.Logger
}

// AuditOption configures an AuditLog.
type AuditOption func(*lumberjack.Logger)

// WithRotation sets the size threshold in megabytes and the number of
// rotated files to keep.
func WithRotation(maxSizeMB, maxBackups int) AuditOption {
	return func(l *lumberjack.Logger) {
		if maxSizeMB > 0 {
			l.MaxSize = maxSizeMB
		}
		if maxBackups >= 0 {
			l.MaxBackups = maxBackups
		}
	}
}

// WithCompression gzips rotated audit files.
func WithCompression(enabled bool) AuditOption {
	return func(l *lumberjack.Logger) { l.Compress = enabled }
}

// NewAuditLog opens (or creates) the audit file at path.
func NewAuditLog(path string, opts ...AuditOption) (*AuditLog, error) {
	if path == "" {
		return nil, ErrNoAuditPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
	}
	for _, opt := range opts {
		opt(rotator)
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
				return slog.Attr{}
			}
			return a
		},
	})

	return &AuditLog{rotator: rotator, log: slog.New(handler)}, nil
}

// Name implements worker.Publisher.
func (a *AuditLog) Name() string { return "audit" }

// Publish writes one line for p. The file is shared by all workers; slog
// handlers serialise writes.
func (a *AuditLog) Publish(ctx context.Context, p model.Publication) error { //nolint:gocritic // hugeParam: matches worker.Publisher
	if err := ctx.Err(); err != nil {
		return err
	}
	r := p.Result
	a.log.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("id", p.ID),
		slog.Time("published_at", p.PublishedAt),
		slog.String("driver_id", r.DriverID),
		slog.String("trip_id", r.TripID),
		slog.String("tier", r.Tier),
		slog.Float64("final_score", r.FinalScore),
		slog.Any("result", r),
	)
	return nil
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	return a.rotator.Close()
}
