package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/notes"
	"go.uber.org/zap"
)

const (
	NoteEventChanged    = "note-change"
	noteEventHeartbeat  = "heartbeat"
	noteEventSource     = "notes-platform-backend"
	defaultEventBufSize = 16
)

// NoteEvent tells a subscriber which notes changed and how.
type NoteEvent struct {
	UserID    string
	EventType string
	Kind      notes.ChangeKind
	NoteIDs   []string
	Timestamp time.Time
}

// NoteEventDispatcherConfig tunes a NoteEventDispatcher.
type NoteEventDispatcherConfig struct {
	// BufferSize is the per-subscription queue length. Events beyond it are dropped.
	BufferSize int
	Logger     *zap.Logger
}

// NoteEventDispatcher fans repository changes out to the streams of the
// user who made them. Publishing never blocks on a slow stream.
type NoteEventDispatcher struct {
	mu         sync.RWMutex
	byUser     map[string]map[*subscription]struct{}
	bufferSize int
	logger     *zap.Logger
}

type subscription struct {
	userID  string
	stream  chan NoteEvent
	dropped atomic.Uint64
	once    sync.Once
	stop    func() bool
}

func NewNoteEventDispatcher(cfg NoteEventDispatcherConfig) *NoteEventDispatcher {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultEventBufSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteEventDispatcher{
		byUser:     make(map[string]map[*subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// NotesChanged publishes a committed repository change.
func (d *NoteEventDispatcher) NotesChanged(event notes.ChangeEvent) {
	d.Publish(NoteEvent{
		UserID:    event.UserID,
		EventType: NoteEventChanged,
		Kind:      event.Kind,
		NoteIDs:   []string{event.NoteID},
		Timestamp: event.Timestamp,
	})
}

// Subscribe opens a stream of events for userID. The stream is closed when ctx
// ends or the returned cancel func runs, whichever comes first.
func (d *NoteEventDispatcher) Subscribe(ctx context.Context, userID string) (<-chan NoteEvent, func()) {
	if userID == "" {
		closed := make(chan NoteEvent)
		close(closed)
		return closed, func() {}
	}

	sub := &subscription{
		userID: userID,
		stream: make(chan NoteEvent, d.bufferSize),
	}
	d.mu.Lock()
	if d.byUser[userID] == nil {
		d.byUser[userID] = make(map[*subscription]struct{})
	}
	d.byUser[userID][sub] = struct{}{}
	d.mu.Unlock()

	sub.stop = context.AfterFunc(ctx, func() { d.unsubscribe(sub) })
	return sub.stream, func() {
		sub.stop()
		d.unsubscribe(sub)
	}
}

// Publish queues message on every stream of its user.
func (d *NoteEventDispatcher) Publish(message NoteEvent) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	// Sends happen under the read lock so unsubscribe can close streams safely.
	d.mu.RLock()
	defer d.mu.RUnlock()
	for sub := range d.byUser[message.UserID] {
		select {
		case sub.stream <- message:
		default:
			dropped := sub.dropped.Add(1)
			d.logger.Debug("note event dropped",
				zap.String("user_id", message.UserID),
				zap.String("event_type", message.EventType),
				zap.Uint64("dropped_total", dropped),
			)
		}
	}
}

func (d *NoteEventDispatcher) unsubscribe(sub *subscription) {
	sub.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.byUser[sub.userID]
		delete(subs, sub)
		if len(subs) == 0 {
			delete(d.byUser, sub.userID)
		}
		close(sub.stream)
	})
}

func (d *NoteEventDispatcher) subscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser[userID])
}
