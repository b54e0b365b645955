package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/storage"
)

type mockWriter struct {
	mu    sync.Mutex
	users map[string]storage.User
	err   error
}

func (m *mockWriter) UpsertUser(_ context.Context, u storage.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.users == nil {
		m.users = make(map[string]storage.User)
	}
	_, exists := m.users[u.ID]
	m.users[u.ID] = u
	return !exists, nil
}

func (m *mockWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func TestSeedUsers_Idempotent(t *testing.T) {
	w := &mockWriter{}
	u := storage.User{ID: "u-1", Email: "ada@example.com", Name: "Ada"}

	for i := 0; i < 2; i++ {
		if err := SeedUsers(context.Background(), w, zerolog.Nop(), u); err != nil {
			t.Fatalf("SeedUsers() run %d error = %v", i, err)
		}
	}
	if w.count() != 1 {
		t.Errorf("users = %d, want 1", w.count())
	}
}

func TestSeedUsers_Errors(t *testing.T) {
	tests := []struct {
		name   string
		writer *mockWriter
		users  []storage.User
	}{
		{
			name:   "missing email",
			writer: &mockWriter{},
			users:  []storage.User{{ID: "u-1"}},
		},
		{
			name:   "missing id",
			writer: &mockWriter{},
			users:  []storage.User{{Email: "a@example.com"}},
		},
		{
			name:   "store failure",
			writer: &mockWriter{err: errors.New("connection refused")},
			users:  []storage.User{{ID: "u-1", Email: "a@example.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SeedUsers(context.Background(), tt.writer, zerolog.Nop(), tt.users...); err == nil {
				t.Fatal("SeedUsers() expected error")
			}
			if tt.writer.count() != 0 {
				t.Errorf("users = %d, want 0", tt.writer.count())
			}
		})
	}
}
