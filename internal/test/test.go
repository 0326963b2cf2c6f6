// Package test holds shared helpers for package tests.
package test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"textcast/internal/store"
)

// MockEnqueuer records episode admissions for assertions.
type MockEnqueuer struct {
	mu       sync.Mutex
	Enqueued []string
}

func (m *MockEnqueuer) Enqueue(episodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Enqueued = append(m.Enqueued, episodeID)
}

func (m *MockEnqueuer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Enqueued)
}

// NewMockDB wraps a sqlmock connection in a Store for tests that assert on
// exact SQL without touching a real database.
func NewMockDB(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })
	return &store.Store{DB: sqlx.NewDb(mockDb, "sqlmock")}, mock
}

// NewTestStore opens a real SQLite store in a temp directory with the full
// schema applied.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// Logger returns a no-op logger for constructor wiring.
func Logger() *zap.Logger {
	return zap.NewNop()
}
