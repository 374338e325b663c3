package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

// queryCounter counts SELECT statements issued against the notes table.
type queryCounter struct {
	mu    sync.Mutex
	notes int
}

func (c *queryCounter) noteQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notes
}

func openTestDatabase(t *testing.T) (*gorm.DB, *queryCounter) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Note{}, &Favorite{}, &users.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	counter := &queryCounter{}
	err = db.Callback().Query().After("gorm:query").Register("test:count_note_queries", func(tx *gorm.DB) {
		if tx.Statement.Table == "notes" {
			counter.mu.Lock()
			counter.notes++
			counter.mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("failed to register query callback: %v", err)
	}
	return db, counter
}

// recordingStore wraps a cache store and remembers what was written.
type recordingStore struct {
	cache.Store
	mu      sync.Mutex
	written map[string][]byte
	getErr  error
}

func (s *recordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	getErr := s.getErr
	s.mu.Unlock()
	if getErr != nil {
		return nil, getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.written[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *recordingStore) payload(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.written[key]
	return value, ok
}

type fakeURLIssuer struct {
	mu     sync.Mutex
	err    error
	issued int
}

func (f *fakeURLIssuer) IssueGet(objectKey string, ttl time.Duration) (storage.SignedURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storage.SignedURL{}, f.err
	}
	f.issued++
	return storage.SignedURL{
		URL:       fmt.Sprintf("https://files.test/%s?token=t%d", objectKey, f.issued),
		ExpiresAt: fixedNow.Add(ttl),
	}, nil
}

func (f *fakeURLIssuer) IssuePut(objectKey, contentType string, ttl time.Duration) (storage.SignedURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storage.SignedURL{}, f.err
	}
	return storage.SignedURL{
		URL:       fmt.Sprintf("https://files.test/%s?token=put&type=%s", objectKey, contentType),
		ExpiresAt: fixedNow.Add(ttl),
	}, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Supports(contentType string) bool {
	return strings.HasPrefix(contentType, "application/pdf")
}

func (f fakeExtractor) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

type fakeSummarizer struct {
	mu      sync.Mutex
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("note-%03d", p.next), nil
}

type testHarness struct {
	service    *Service
	db         *gorm.DB
	queries    *queryCounter
	cache      *recordingStore
	objects    *storage.Filesystem
	urls       *fakeURLIssuer
	summarizer *fakeSummarizer
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db, counter := openTestDatabase(t)

	badgerStore, err := cache.OpenBadger(cache.BadgerConfig{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() {
		_ = badgerStore.Close()
	})
	store := &recordingStore{Store: badgerStore, written: make(map[string][]byte)}

	objects, err := storage.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create object store: %v", err)
	}

	urls := &fakeURLIssuer{}
	summarizer := &fakeSummarizer{summary: "Graphs are vertices joined by edges."}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Cache:      store,
		Objects:    objects,
		URLs:       urls,
		Extractor:  fakeExtractor{text: "Graph theory lecture notes"},
		Summarizer: summarizer,
		Clock:      func() time.Time { return fixedNow },
		IDProvider: &sequentialIDs{},
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return &testHarness{
		service:    service,
		db:         db,
		queries:    counter,
		cache:      store,
		objects:    objects,
		urls:       urls,
		summarizer: summarizer,
	}
}

func (h *testHarness) seedNote(t *testing.T, note Note) Note {
	t.Helper()
	if note.FileKey == "" {
		note.FileKey = "notes/" + note.CreatedBy + "/" + note.NoteID + ".pdf"
	}
	if note.CreatedAtSeconds == 0 {
		note.CreatedAtSeconds = fixedNow.Unix()
		note.UpdatedAtSeconds = fixedNow.Unix()
	}
	if note.Status == "" {
		note.Status = StatusApproved
	}
	if err := h.db.Create(&note).Error; err != nil {
		t.Fatalf("failed to seed note: %v", err)
	}
	return note
}

func (h *testHarness) seedAuthor(t *testing.T, userID, name, email string) {
	t.Helper()
	if err := h.db.Create(&users.User{UserID: userID, DisplayName: name, Email: email, Role: users.RoleStudent}).Error; err != nil {
		t.Fatalf("failed to seed author: %v", err)
	}
}

func (h *testHarness) favoriteCount(t *testing.T, userID, noteID string) int64 {
	t.Helper()
	var count int64
	if err := h.db.Model(&Favorite{}).Where("user_id = ? AND note_id = ?", userID, noteID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count favourites: %v", err)
	}
	return count
}

var errInjected = errors.New("injected failure")
