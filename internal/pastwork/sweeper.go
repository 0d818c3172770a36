// Package pastwork removes past-work drafts whose project key was never
// finalised, along with the files uploaded against them.
package pastwork

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// Sweeper defaults.
const (
	DefaultTTL      = 24 * time.Hour
	DefaultInterval = time.Hour
)

// Sweeper periodically deletes stale drafts.
type Sweeper struct {
	DB        *sql.DB
	Media     media.Store
	Publisher events.Publisher
	TTL       time.Duration
	Interval  time.Duration

	now func() time.Time
}

// Run sweeps once immediately, then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.Sweep(ctx); err != nil {
			slog.Error("past work sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("past work drafts swept", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep deletes drafts older than TTL and returns how many were removed.
// A draft finalised after it was listed is left alone.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	drafts, err := store.StaleDrafts(ctx, s.DB, now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, d := range drafts {
		removed, err := s.remove(ctx, d)
		if err != nil {
			slog.Warn("removing stale draft", "project_key", d.ProjectKey, "error", err)
			continue
		}
		if !removed {
			continue
		}
		swept++
		events.Emit(ctx, s.Publisher, events.New(events.EntityPastProject, events.ActionDeleted, d.ID))
	}
	return swept, nil
}

// remove deletes d if it is still a draft. Blobs are deleted only after the
// rows are gone; a blob that fails to delete is logged and left orphaned.
func (s *Sweeper) remove(ctx context.Context, d model.PastProject) (bool, error) {
	files, removed, err := store.DeleteDraft(ctx, s.DB, d.ID)
	if err != nil || !removed {
		return false, err
	}
	for _, f := range files {
		if err := s.Media.Delete(ctx, f.ObjectKey); err != nil && !errors.Is(err, media.ErrNotFound) {
			slog.Warn("deleting draft blob", "project_key", d.ProjectKey, "object_key", f.ObjectKey, "error", err)
		}
	}
	return true, nil
}
