// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcdash/telemetry/internal/database"
	"github.com/rcdash/telemetry/internal/model"
	"github.com/rcdash/telemetry/internal/model/convert"
	"github.com/rcdash/telemetry/internal/queue"
	"github.com/rcdash/telemetry/internal/storage"
	"github.com/rcdash/telemetry/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultFlushInterval = 2 * time.Second
	DefaultBatchSize     = 5000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is. When nil, Open is called by Init.
	DB            *gorm.DB
	Open          func() (*gorm.DB, error)
	Logger        *slog.Logger
	FlushInterval time.Duration
	BatchSize     int
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Snapshots *queue.Queue[model.SnapshotRecord]
	Signals   *queue.Queue[model.SignalRecord]
}

func newQueues() *queues {
	return &queues{
		Snapshots: queue.New[model.SnapshotRecord](),
		Signals:   queue.New[model.SignalRecord](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Value // string

	writeMu   sync.Mutex
	lastWrite atomic.Int64

	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	b := &Backend{
		deps:   deps,
		log:    log.With("component", "storage", "dialect", "gorm"),
		queues: newQueues(),
	}
	b.sessionID.Store("")
	return b
}

// Init connects if needed, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		if b.deps.Open == nil {
			return errors.New("no database configured")
		}
		db, err := b.deps.Open()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		b.deps.DB = db
	}
	b.log = b.log.With("dialect", b.deps.DB.Name())

	if err := database.Setup(b.deps.DB, b.log); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.startDBWriter()
	return nil
}

// DB returns the underlying connection, nil before Init.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
		err = b.Flush()
	})
	return err
}

// StartSession upserts the driver and session rows and makes the session
// the target of every queued record.
func (b *Backend) StartSession(s *core.Session) error {
	db := b.deps.DB
	if db == nil {
		return errors.New("backend not initialized")
	}

	row := convert.CoreToSession(*s)
	driver := row.Driver
	if driver.ID != "" {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "email"}),
		}).Create(&driver).Error; err != nil {
			return fmt.Errorf("failed to upsert driver %s: %w", driver.ID, err)
		}
	}

	if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session %s: %w", row.ID, err)
	}

	b.sessionID.Store(row.ID)
	b.log.Info("Session recorded", "session", row.ID, "driver", driver.Username)
	return nil
}

// EndSession flushes pending records and stores the end time and duration.
func (b *Backend) EndSession(s *core.Session) error {
	if err := b.Flush(); err != nil {
		return err
	}

	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Model(&model.Session{}).Where("id = ?", row.ID).Updates(map[string]any{
		"ended_at":         row.EndedAt,
		"duration_seconds": row.DurationSeconds,
	}).Error; err != nil {
		return fmt.Errorf("failed to close session %s: %w", row.ID, err)
	}
	return nil
}

// RecordSnapshot converts and queues a snapshot.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.queues.Snapshots.Push(convert.CoreToSnapshot(*s))
	return nil
}

// RecordSignal converts and queues a raw signal.
func (b *Backend) RecordSignal(s *core.RawSignal) error {
	b.queues.Signals.Push(convert.CoreToSignal(*s))
	return nil
}

// Stats reports the queue backlog and the duration of the last write cycle.
func (b *Backend) Stats() storage.Stats {
	return storage.Stats{
		PendingSnapshots:  b.queues.Snapshots.Len(),
		PendingSignals:    b.queues.Signals.Len(),
		LastWriteDuration: time.Duration(b.lastWrite.Load()),
	}
}

// Flush writes every queued record. Records queued before a session was
// started stay queued.
func (b *Backend) Flush() error {
	sessionID := b.sessionID.Load().(string)
	if sessionID == "" || b.deps.DB == nil {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	err := errors.Join(
		writeQueue(b.deps.DB, b.queues.Snapshots, "snapshots", b.deps.BatchSize, b.log, func(items []model.SnapshotRecord) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(b.deps.DB, b.queues.Signals, "signals", b.deps.BatchSize, b.log, func(items []model.SignalRecord) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
	)
	b.lastWrite.Store(int64(time.Since(start)))
	return err
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, batchSize int, log *slog.Logger, prepare func([]T)) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		q.Requeue(items...)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// startDBWriter periodically drains the queues into the DB.
func (b *Backend) startDBWriter() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
