// Package refresh keeps the agreement cache warm: on a cron schedule it
// refetches the college directory and every major referenced by a stored
// plan.
package refresh

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/assist"
	"github.com/LehuyH/transfer-helper/internal/config"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

// Source refetches one payload path, bypassing fresh cache entries.
type Source interface {
	Refresh(ctx context.Context, path string) error
}

// Notifier receives the summary of each scheduled run.
type Notifier interface {
	PostText(ctx context.Context, text string) error
}

type Result struct {
	Directory bool
	Total     int
	Refreshed int
	Errors    []string
}

// RunOnce refreshes the directory, then every distinct stored major. Per-path
// failures are collected; an error is returned only when nothing could be
// refreshed or the stored majors cannot be listed.
func RunOnce(ctx context.Context, db *sql.DB, src Source, logger *zap.Logger) (Result, error) {
	var result Result

	if err := src.Refresh(ctx, assist.DirectoryPath()); err != nil {
		logger.Warn("directory refresh failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("directory: %v", err))
	} else {
		result.Directory = true
	}

	keys, err := sqlite.DistinctMajors(db)
	if err != nil {
		return result, fmt.Errorf("list stored majors: %w", err)
	}
	result.Total = len(keys)

	for _, k := range keys {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		path := assist.MajorPath(k.FromID, k.SchoolID, k.Major)
		if err := src.Refresh(ctx, path); err != nil {
			logger.Warn("major refresh failed", zap.String("path", path), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%d -> %d): %v", k.Major, k.FromID, k.SchoolID, err))
			continue
		}
		result.Refreshed++
	}

	if counts, err := sqlite.NewAgreementCache(db).CountByStatus(); err == nil {
		logger.Debug("agreement cache", zap.Any("by_status", counts))
	}

	if !result.Directory && result.Refreshed == 0 && len(result.Errors) > 0 {
		return result, fmt.Errorf("all refreshes failed: %s", strings.Join(result.Errors, "; "))
	}
	return result, nil
}

// FormatSummary returns a human-readable summary of a Result.
func FormatSummary(result Result) string {
	if !result.Directory && result.Refreshed == 0 && len(result.Errors) > 0 {
		return fmt.Sprintf("Error refreshing agreement data:\n%s", strings.Join(result.Errors, "\n"))
	}

	var parts []string
	if result.Directory {
		parts = append(parts, "directory")
	}
	parts = append(parts, fmt.Sprintf("%d/%d majors", result.Refreshed, result.Total))
	msg := fmt.Sprintf("Refreshed %s.", strings.Join(parts, " and "))
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

type Scheduler struct {
	schedule cron.Schedule
	expr     string
	db       *sql.DB
	src      Source
	notify   Notifier
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewScheduler returns nil when no refresh_schedule is configured. notify may
// be nil.
func NewScheduler(cfg config.Config, db *sql.DB, src Source, notify Notifier, logger *zap.Logger) (*Scheduler, error) {
	expr := strings.TrimSpace(cfg.RefreshSchedule)
	if expr == "" {
		logger.Info("scheduled refresh disabled (refresh_schedule not set)")
		return nil, nil
	}
	sched, err := config.ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh_schedule '%s': %w", expr, err)
	}
	return &Scheduler{
		schedule: sched,
		expr:     expr,
		db:       db,
		src:      src,
		notify:   notify,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Run blocks until ctx is done, refreshing at every scheduled time.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduled refresh enabled", zap.String("cron", s.expr))
	for {
		now := s.now()
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.logger.Info("next refresh", zap.Time("at", next), zap.Duration("in", wait.Round(time.Minute)))

		if err := s.sleep(ctx, wait); err != nil {
			return
		}

		result, err := RunOnce(ctx, s.db, s.src, s.logger)
		summary := FormatSummary(result)
		if err != nil {
			s.logger.Error("refresh error", zap.Error(err))
		}
		s.logger.Info("refresh complete", zap.String("summary", summary))

		if s.notify != nil {
			if err := s.notify.PostText(ctx, "Agreement refresh complete: "+summary); err != nil {
				s.logger.Warn("refresh post error", zap.Error(err))
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
