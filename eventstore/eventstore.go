// Package eventstore provides the append-only event log that serves as the
// single source of truth for the ledger. It uses sqlite (or postgres) as
// backing storage through gorm, assigns a global monotonic sequence to every
// stored event and enforces per-stream optimistic concurrency through a
// compound (stream_id, stream_version) unique index.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrStreamNotFound indicates that the requested stream does not exist in the event log
	ErrStreamNotFound = errors.New("stream not found")

	// ErrConcurrencyCheckFailed indicates that the stream was appended to after the
	// caller last observed it. Use AsConflict to obtain the actual stream version
	ErrConcurrencyCheckFailed = errors.New("optimistic concurrency check failed: stream version exists")
)

// InitialStreamVersion is the expected version callers supply when
// appending to a stream that does not exist yet
const InitialStreamVersion int = 0

// ConflictError is returned by AppendStream when the optimistic concurrency
// check fails. It carries the version the writer expected and the version the
// stream actually had at write time so the caller can re-rehydrate and retry.
type ConflictError struct {
	Stream   string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"stream %s: expected version %d but stream is at version %d: %v",
		e.Stream, e.Expected, e.Actual, ErrConcurrencyCheckFailed,
	)
}

// Is makes errors.Is(err, ErrConcurrencyCheckFailed) hold for conflict errors
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyCheckFailed
}

// AsConflict extracts a ConflictError from err if there is one
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError

	if errors.As(err, &c) {
		return c, true
	}

	return nil, false
}

// EncodedEvt represents an encoded event produced by an Encoder implementation
type EncodedEvt struct {
	Data string
	Type string
}

// Encoder is used by the event store in order to correctly marshal
// and unmarshal event types
type Encoder interface {
	Encode(any) (*EncodedEvt, error)
	Decode(*EncodedEvt) (any, error)
}

// Cfg represents event store configuration
type Cfg struct {
	PostgresDSN string
	SQLitePath  string
}

// Option represents an event store configuration option
type Option func(Cfg) Cfg

// WithPostgresDB configures the event store to use postgres as
// backing storage (pgx driver)
func WithPostgresDB(dsn string) Option {
	return func(cfg Cfg) Cfg {
		cfg.PostgresDSN = dsn

		return cfg
	}
}

// WithSQLiteDB configures the event store to use sqlite as backing storage
func WithSQLiteDB(path string) Option {
	return func(cfg Cfg) Cfg {
		cfg.SQLitePath = path

		return cfg
	}
}

// New constructs the event store
// enc - a specific encoder implementation (see bundled JSONEncoder)
func New(enc Encoder, opts ...Option) (*EventStore, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder implementation must be provided")
	}

	var cfg Cfg

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if cfg.PostgresDSN == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("either postgres dsn or sqlite path must be provided")
	}

	var dial gorm.Dialector

	if cfg.PostgresDSN != "" {
		dial = postgres.Open(cfg.PostgresDSN)
	}

	if cfg.SQLitePath != "" {
		dial = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	return &EventStore{
		db:  db,
		enc: enc,
	}, db.AutoMigrate(&gormEvent{})
}

// EventStore is the append-only, globally ordered event log
type EventStore struct {
	db  *gorm.DB
	enc Encoder
}

// DB exposes the underlying gorm handle so read models can live in the same
// database file. Read models own their tables exclusively - nothing outside
// this package touches the event table.
func (es *EventStore) DB() *gorm.DB { return es.db }

// Close should be called as part of the cleanup process in order to
// close the underlying sql connection
func (es *EventStore) Close() error {
	sqlDB, err := es.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

type gormEvent struct {
	ID            string `gorm:"unique"`
	Sequence      uint64 `gorm:"autoIncrement;primaryKey"`
	Type          string
	Data          string
	Meta          *string
	StreamID      string    `gorm:"index:idx_optimistic_check,unique;index"`
	StreamVersion int       `gorm:"index:idx_optimistic_check,unique"`
	OccurredOn    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the gorm table name
func (ge *gormEvent) TableName() string { return "event" }

// AppendStream encodes the provided events and appends them to the indicated
// stream in a single transaction - either every event is durably written with
// consecutive versions or none are. If the stream does not exist it is created.
//
// expectedVer must be InitialStreamVersion for new streams and the latest
// stream version otherwise; on mismatch a ConflictError carrying the actual
// current version is returned and nothing is written.
func (es *EventStore) AppendStream(
	ctx context.Context,
	stream string,
	expectedVer int,
	events []EventToStore) ([]StoredEvent, error) {

	if len(stream) == 0 {
		return nil, fmt.Errorf("stream name must be provided")
	}

	if expectedVer < InitialStreamVersion {
		return nil, fmt.Errorf("expected version cannot be less than 0")
	}

	if len(events) == 0 {
		return nil, nil
	}

	eventsToSave := make([]gormEvent, len(events))

	for i, evt := range events {
		encoded, err := es.enc.Encode(evt.Event)
		if err != nil {
			return nil, err
		}

		expectedVer++

		event := gormEvent{
			ID:            evt.ID,
			Type:          encoded.Type,
			Data:          encoded.Data,
			StreamID:      stream,
			StreamVersion: expectedVer,
			OccurredOn:    evt.OccurredOn,
		}

		if evt.Meta != nil {
			m, err := json.Marshal(evt.Meta)
			if err != nil {
				return nil, err
			}

			ms := string(m)

			event.Meta = &ms
		}

		if event.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}

			event.ID = id.String()
		}

		if event.OccurredOn.IsZero() {
			event.OccurredOn = time.Now().UTC()
		}

		eventsToSave[i] = event
	}

	tx := es.db.WithContext(ctx).Create(&eventsToSave)
	if err := tx.Error; err != nil {
		if isUniqueViolation(err) {
			return nil, es.conflict(ctx, stream, expectedVer-len(events))
		}

		return nil, err
	}

	return es.decodeEvents(eventsToSave)
}

func isUniqueViolation(err error) bool {
	if e, ok := err.(sqlite3.Error); ok && e.Code == sqlite3.ErrConstraint {
		return true
	}

	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func (es *EventStore) conflict(ctx context.Context, stream string, expectedVer int) error {
	actual, err := es.StreamVersion(ctx, stream)
	if err != nil {
		return err
	}

	return &ConflictError{
		Stream:   stream,
		Expected: expectedVer,
		Actual:   actual,
	}
}

// StreamVersion returns the version of the last event appended to the stream
// or InitialStreamVersion if the stream does not exist
func (es *EventStore) StreamVersion(ctx context.Context, stream string) (int, error) {
	var ver *int

	err := es.db.
		WithContext(ctx).
		Model(&gormEvent{}).
		Select("max(stream_version)").
		Where("stream_id = ?", stream).
		Scan(&ver).Error
	if err != nil {
		return 0, err
	}

	if ver == nil {
		return InitialStreamVersion, nil
	}

	return *ver, nil
}

// ReadStream reads all events associated with the provided stream in version
// order. If no events are stored for the stream ErrStreamNotFound is returned
// so callers can distinguish a missing aggregate from a present-but-empty one.
func (es *EventStore) ReadStream(ctx context.Context, stream string) ([]StoredEvent, error) {
	var events []gormEvent

	if len(stream) == 0 {
		return nil, fmt.Errorf("stream name must be provided")
	}

	if err := es.db.
		WithContext(ctx).
		Where("stream_id = ?", stream).
		Order("sequence asc").
		Find(&events).Error; err != nil {

		return nil, err
	}

	if len(events) == 0 {
		return nil, ErrStreamNotFound
	}

	return es.decodeEvents(events)
}

// ReadBatch reads up to limit events with a global sequence strictly greater
// than after, ordered by sequence. An empty slice means the caller has caught
// up with the head of the log. Projection catch-up and rebuild are driven by
// calling ReadBatch repeatedly with an advancing cursor.
func (es *EventStore) ReadBatch(ctx context.Context, after uint64, limit int) ([]StoredEvent, error) {
	if limit < 1 {
		return nil, fmt.Errorf("batch limit should be at least 1")
	}

	var events []gormEvent

	if err := es.db.
		WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence asc").
		Limit(limit).
		Find(&events).Error; err != nil {

		return nil, err
	}

	return es.decodeEvents(events)
}

// LastSequence returns the global sequence of the most recently stored event
// (zero for an empty log)
func (es *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq *uint64

	err := es.db.
		WithContext(ctx).
		Model(&gormEvent{}).
		Select("max(sequence)").
		Scan(&seq).Error
	if err != nil {
		return 0, err
	}

	if seq == nil {
		return 0, nil
	}

	return *seq, nil
}

// ReadAll reads the entire event log from the provided global position
// (exclusive) in batches of batchSize.
// WARNING: this loads everything after the offset into memory - best used
// for full projection rebuilds of modestly sized local ledgers
func (es *EventStore) ReadAll(ctx context.Context, after uint64, batchSize int) ([]StoredEvent, error) {
	var all []StoredEvent

	for {
		batch, err := es.ReadBatch(ctx, after, batchSize)
		if err != nil {
			return nil, err
		}

		if len(batch) == 0 {
			return all, nil
		}

		all = append(all, batch...)
		after = batch[len(batch)-1].Sequence
	}
}

func (es *EventStore) decodeEvents(events []gormEvent) ([]StoredEvent, error) {
	out := make([]StoredEvent, len(events))

	for i, evt := range events {
		data, err := es.enc.Decode(&EncodedEvt{
			Data: evt.Data,
			Type: evt.Type,
		})
		if err != nil {
			return nil, err
		}

		var meta map[string]string

		if evt.Meta != nil {
			err = json.Unmarshal([]byte(*evt.Meta), &meta)
			if err != nil {
				return nil, err
			}
		}

		out[i] = StoredEvent{
			Event:         data,
			Meta:          meta,
			ID:            evt.ID,
			Sequence:      evt.Sequence,
			Type:          evt.Type,
			StreamID:      evt.StreamID,
			StreamVersion: evt.StreamVersion,
			OccurredOn:    evt.OccurredOn,
		}
	}

	return out, nil
}
