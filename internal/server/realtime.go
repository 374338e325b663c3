package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// EventNoteChanged reports that one of the user's own notes was created, edited or removed.
	EventNoteChanged = "note-change"
	// EventFavouriteChanged reports that the user's favourites changed in another session.
	EventFavouriteChanged = "favourite-change"

	eventHeartbeat        = "heartbeat"
	changeFeedBufferSize  = 16
	changeFeedEventSource = "studynotes-backend"
)

// ChangeEvent is delivered to every open event stream of UserID.
type ChangeEvent struct {
	UserID    string
	EventType string
	NoteIDs   []string
	Timestamp time.Time
}

// ChangeFeed fans change events out to per-user subscribers. Slow subscribers drop events.
type ChangeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan ChangeEvent
	nextID      int64
	clock       func() time.Time
}

// NewChangeFeed returns an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		subscribers: make(map[string]map[int64]chan ChangeEvent),
		clock:       time.Now,
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (f *ChangeFeed) Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, func()) {
	if userID == "" {
		closed := make(chan ChangeEvent)
		close(closed)
		return closed, func() {}
	}

	stream := make(chan ChangeEvent, changeFeedBufferSize)
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.subscribers[userID] == nil {
		f.subscribers[userID] = make(map[int64]chan ChangeEvent)
	}
	f.subscribers[userID][id] = stream
	f.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if streams := f.subscribers[userID]; streams != nil {
				delete(streams, id)
				if len(streams) == 0 {
					delete(f.subscribers, userID)
				}
			}
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers event without blocking.
func (f *ChangeFeed) Publish(event ChangeEvent) {
	if event.UserID == "" || event.EventType == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = f.clock().UTC()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, stream := range f.subscribers[event.UserID] {
		select {
		case stream <- event:
		default:
		}
	}
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	ctx := c.Request.Context()
	stream, cleanup := h.feed.Subscribe(ctx, userID)
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, gin.H{
				"noteIds":   event.NoteIDs,
				"timestamp": event.Timestamp.Unix(),
				"source":    changeFeedEventSource,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{"timestamp": time.Now().UTC().Unix()})
			return true
		}
	})
}
