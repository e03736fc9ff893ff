// Package projection synchronizes read models with the event log. Each
// projection is a pure apply function over stored events plus a persisted
// cursor; the same fold runs whether events arrive one by one after a commit
// or in bulk during catch-up and full rebuild, which is what makes a rebuilt
// projection indistinguishable from an incrementally maintained one.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/metrics"
	"gorm.io/gorm"
)

// ErrProjectionNotFound indicates an unregistered projection id
var ErrProjectionNotFound = errors.New("projection not found")

// Store is the event log surface needed for catch-up and rebuild
type Store interface {
	ReadBatch(ctx context.Context, after uint64, limit int) ([]eventstore.StoredEvent, error)
}

// Projection is one registered read model applier. Apply must be
// deterministic for a given event - it runs during live dispatch, catch-up
// and rebuild alike. It receives the transaction in which the projector also
// checkpoints the cursor, so projection state and cursor always commit
// together (an apply is never observed without its cursor advance, and vice
// versa). Truncate drops the projection's own storage so a rebuild starts
// from nothing.
type Projection struct {
	ID       string
	Apply    func(ctx context.Context, tx *gorm.DB, evt eventstore.StoredEvent) error
	Truncate func(ctx context.Context, tx *gorm.DB) error
}

// StaleError reports projections whose apply failed after the event was
// already durably committed. The command that triggered the dispatch still
// succeeded - the source of truth is intact - but the listed projections are
// out of date and eligible for rebuild.
type StaleError struct {
	Projections []string
	Causes      []error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("projections marked stale: %v: %v", e.Projections, errors.Join(e.Causes...))
}

// Opt configures the projector
type Opt func(*Projector)

// WithBatchSize sets the read batch size used during catch-up and rebuild
func WithBatchSize(n int) Opt {
	return func(p *Projector) {
		p.batchSize = n
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Opt {
	return func(p *Projector) {
		p.log = log
	}
}

// WithMetrics wires the prometheus collectors
func WithMetrics(m *metrics.Ledger) Opt {
	return func(p *Projector) {
		p.metrics = m
	}
}

// NewProjector constructs a projector persisting its cursors in the provided
// database. Register all projections before dispatching events.
func NewProjector(db *gorm.DB, store Store, opts ...Opt) (*Projector, error) {
	p := Projector{
		db:        db,
		store:     store,
		log:       slog.Default(),
		batchSize: 100,
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p, db.AutoMigrate(&cursorRow{})
}

// Projector drives all registered projections: synchronous per-event dispatch
// after each commit, catch-up on startup and full rebuilds. Projections are
// always iterated in registration order. Rebuild and incremental dispatch
// never run concurrently - a single mutex serializes all projection work,
// which matches the engine's single writer model.
type Projector struct {
	db        *gorm.DB
	store     Store
	log       *slog.Logger
	metrics   *metrics.Ledger
	batchSize int

	mu          sync.Mutex
	projections []Projection
}

// Register adds projections to the registry (in registration order)
func (p *Projector) Register(projections ...Projection) {
	p.projections = append(p.projections, projections...)
}

// Dispatch applies freshly committed events to every registered projection,
// in registration order, advancing each projection's cursor one event at a
// time. Events at or below a projection's cursor are skipped, so replaying
// after a crash is harmless.
//
// A failing projection is marked stale and skipped for the rest of the
// dispatch; the returned StaleError reports it without undoing anything -
// the events are already the source of truth.
func (p *Projector) Dispatch(ctx context.Context, events []eventstore.StoredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale StaleError

	for _, proj := range p.projections {
		cursor, err := loadCursor(p.db, proj.ID)
		if err != nil {
			return err
		}

		if cursor.Stale {
			continue
		}

		if err := p.advance(ctx, proj, &cursor, events); err != nil {
			p.markStale(proj.ID, cursor, err)

			stale.Projections = append(stale.Projections, proj.ID)
			stale.Causes = append(stale.Causes, err)
		}
	}

	if len(stale.Projections) > 0 {
		return &stale
	}

	return nil
}

func (p *Projector) advance(ctx context.Context, proj Projection, cursor *cursorRow, events []eventstore.StoredEvent) error {
	for _, evt := range events {
		if evt.Sequence <= cursor.Position {
			continue
		}

		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := proj.Apply(ctx, tx, evt); err != nil {
				return fmt.Errorf("apply %s (seq %d): %w", evt.Type, evt.Sequence, err)
			}

			cursor.Position = evt.Sequence

			return saveCursor(tx, *cursor)
		})
		if err != nil {
			return fmt.Errorf("projection %s: %w", proj.ID, err)
		}

		if p.metrics != nil {
			p.metrics.ProjectionApplied.WithLabelValues(proj.ID).Inc()
		}
	}

	return nil
}

func (p *Projector) markStale(id string, cursor cursorRow, cause error) {
	p.log.Error("projection marked stale, rebuild required",
		"projection", id,
		"position", cursor.Position,
		"err", cause,
	)

	if p.metrics != nil {
		p.metrics.ProjectionFailures.WithLabelValues(id).Inc()
	}

	cursor.Stale = true

	if err := saveCursor(p.db, cursor); err != nil {
		p.log.Error("failed to persist stale flag", "projection", id, "err", err)
	}
}

// CatchUp replays events each projection missed (from its cursor to the head
// of the log). Meant to run on startup, before new commands are accepted, so
// a crash between an append and its dispatch leaves no permanent gap. Stale
// projections are left alone - they need a Rebuild.
func (p *Projector) CatchUp(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proj := range p.projections {
		cursor, err := loadCursor(p.db, proj.ID)
		if err != nil {
			return err
		}

		if cursor.Stale {
			p.log.Warn("skipping catch-up of stale projection", "projection", proj.ID)

			continue
		}

		if err := p.replay(ctx, proj, &cursor); err != nil {
			return err
		}
	}

	return nil
}

// Rebuild truncates the projection's storage, resets its cursor to zero and
// refolds the entire event log from the beginning. The cursor is
// checkpointed after every applied event and cancellation is honored between
// events, so an interrupted rebuild resumes from its last committed position
// via CatchUp rather than restarting from scratch.
func (p *Projector) Rebuild(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proj := range p.projections {
		if proj.ID != id {
			continue
		}

		p.log.Info("rebuilding projection", "projection", id)

		if p.metrics != nil {
			p.metrics.ProjectionRebuilds.WithLabelValues(id).Inc()
		}

		cursor := cursorRow{ProjectionID: id}

		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := proj.Truncate(ctx, tx); err != nil {
				return fmt.Errorf("projection %s: truncate: %w", id, err)
			}

			return saveCursor(tx, cursor)
		})
		if err != nil {
			return err
		}

		return p.replay(ctx, proj, &cursor)
	}

	return fmt.Errorf("%w: %s", ErrProjectionNotFound, id)
}

// Stale returns the ids of projections currently marked stale
func (p *Projector) Stale(ctx context.Context) ([]string, error) {
	var rows []cursorRow

	err := p.db.WithContext(ctx).Where("stale = ?", true).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var ids []string

	for _, row := range rows {
		ids = append(ids, row.ProjectionID)
	}

	return ids, nil
}

func (p *Projector) replay(ctx context.Context, proj Projection, cursor *cursorRow) error {
	for {
		batch, err := p.store.ReadBatch(ctx, cursor.Position, p.batchSize)
		if err != nil {
			return err
		}

		if len(batch) == 0 {
			return nil
		}

		for _, evt := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := p.advance(ctx, proj, cursor, []eventstore.StoredEvent{evt}); err != nil {
				return err
			}
		}
	}
}
