// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues drained by a background DB writer goroutine. The SQLite
// and PostgreSQL backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cogconvo/captioner/internal/database"
	"github.com/cogconvo/captioner/internal/model"
	"github.com/cogconvo/captioner/internal/model/convert"
	"github.com/cogconvo/captioner/internal/queue"
	"github.com/cogconvo/captioner/pkg/core"
)

// DefaultFlushInterval is how often queued rows are written.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Captions  *queue.Queue[model.CaptionMessage]
	Focus     *queue.Queue[model.FocusChange]
	Targets   *queue.Queue[model.TargetChange]
	Positions *queue.Queue[model.SpeakerPosition]
}

func newQueues() *queues {
	return &queues{
		Captions:  queue.New[model.CaptionMessage](),
		Focus:     queue.New[model.FocusChange](),
		Targets:   queue.New[model.TargetChange](),
		Positions: queue.New[model.SpeakerPosition](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	session   *core.Session

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend. Without a DB it only queues,
// which is how the queue path is unit tested.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{deps: deps, queues: newQueues()}
}

// SetDB attaches the database before Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// DB returns the attached database.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB != nil {
		if err := database.Setup(b.deps.DB, b.deps.Logger); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// StartSession inserts the session row and assigns its ID.
func (b *Backend) StartSession(s *core.Session) error {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	b.session = s
	if b.deps.DB == nil {
		return nil
	}

	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))

	b.deps.Logger.Info().Str("session", s.UUID).Uint("id", row.ID).Msg("Session recording started")
	return nil
}

// EndSession writes the queues and stamps the session end time.
func (b *Backend) EndSession() error {
	if b.session == nil {
		return errors.New("no session started")
	}
	if b.session.EndTime.IsZero() {
		b.session.EndTime = time.Now()
	}
	if err := b.Flush(); err != nil {
		return err
	}
	if b.deps.DB == nil {
		return nil
	}

	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", b.session.ID).
		Update("end_time", b.session.EndTime).Error
	if err != nil {
		return fmt.Errorf("failed to update session end: %w", err)
	}
	return nil
}

// RecordCaption converts and queues a transmitted caption.
func (b *Backend) RecordCaption(r *core.CaptionRecord) error {
	row, err := convert.CoreToCaptionMessage(*r)
	if err != nil {
		return err
	}
	b.queues.Captions.Push(row)
	return nil
}

// RecordFocus converts and queues a focus change.
func (b *Backend) RecordFocus(r *core.FocusRecord) error {
	b.queues.Focus.Push(convert.CoreToFocusChange(*r))
	return nil
}

// RecordTarget converts and queues a caption target change.
func (b *Backend) RecordTarget(r *core.TargetRecord) error {
	b.queues.Targets.Push(convert.CoreToTargetChange(*r))
	return nil
}

// RecordSpeakerPosition converts and queues a speaker position sample.
func (b *Backend) RecordSpeakerPosition(r *core.SpeakerPositionRecord) error {
	row, err := convert.CoreToSpeakerPosition(*r)
	if err != nil {
		return err
	}
	b.queues.Positions.Push(row)
	return nil
}

// Pending returns the number of queued rows.
func (b *Backend) Pending() int {
	return b.queues.Captions.Len() + b.queues.Focus.Len() + b.queues.Targets.Len() + b.queues.Positions.Len()
}

// Flush writes every queue in its own transaction. Failed rows are
// requeued for the next cycle.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	sessionID := uint(b.sessionID.Load())
	db, log := b.deps.DB, b.deps.Logger

	return errors.Join(
		writeQueue(db, b.queues.Captions, "caption messages", log, func(r *model.CaptionMessage) { r.SessionID = sessionID }),
		writeQueue(db, b.queues.Focus, "focus changes", log, func(r *model.FocusChange) { r.SessionID = sessionID }),
		writeQueue(db, b.queues.Targets, "target changes", log, func(r *model.TargetChange) { r.SessionID = sessionID }),
		writeQueue(db, b.queues.Positions, "speaker positions", log, func(r *model.SpeakerPosition) { r.SessionID = sessionID }),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger, stamp func(*T)) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		stamp(&items[i])
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		log.Error().Err(err).Str("table", name).Int("rows", len(items)).Msg("Error writing rows, requeued")
		q.Requeue(items)
		return fmt.Errorf("write %s: %w", name, err)
	}

	log.Trace().Str("table", name).Int("rows", len(items)).Msg("Rows written")
	return nil
}

// writeLoop periodically drains queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged and rows requeued by writeQueue
			_ = b.Flush()
		}
	}
}
