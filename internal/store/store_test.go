package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("expected path %q, got %q", dbPath, s.Path())
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sessions", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	var name string
	err := s.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
		"idx_sessions_started_at",
	).Scan(&name)
	if err != nil {
		t.Errorf("index should exist after migrations: %v", err)
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Settings().Set(SettingConfidence, "0.4"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	v, err := s.Settings().Get(SettingConfidence)
	if err != nil || v != "0.4" {
		t.Errorf("expected 0.4 after reopen, got %q (%v)", v, err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestSessionRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		sess := &Session{ID: "s-1", Transport: "webrtc", ICEDegraded: true, StartedAt: started}
		if err := repo.Create(sess); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID("s-1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Transport != "webrtc" || !got.ICEDegraded {
			t.Errorf("unexpected session %+v", got)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("expected started_at %v, got %v", started, got.StartedAt)
		}
		if got.EndedAt != nil {
			t.Errorf("expected open session, got ended_at %v", got.EndedAt)
		}
	})

	t.Run("finish records counters", func(t *testing.T) {
		ended := started.Add(90 * time.Second)
		if err := repo.Finish("s-1", ended, 1200, 3); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		got, err := repo.GetByID("s-1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Frames != 1200 || got.FailedFrames != 3 {
			t.Errorf("expected 1200/3 frames, got %d/%d", got.Frames, got.FailedFrames)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
			t.Errorf("expected ended_at %v, got %v", ended, got.EndedAt)
		}
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		if err := repo.Create(&Session{ID: "s-bad", Transport: "carrier-pigeon"}); err == nil {
			t.Error("expected constraint error")
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		if err := repo.Create(&Session{ID: "s-1", Transport: "websocket"}); err == nil {
			t.Error("expected duplicate id error")
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		if err := repo.Create(&Session{ID: "s-2", Transport: "websocket", StartedAt: started.Add(time.Hour)}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		list, err := repo.List(10)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != "s-2" || list[1].ID != "s-1" {
			t.Errorf("unexpected order: %+v", list)
		}

		limited, err := repo.List(1)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 session, got %d", len(limited))
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Finish("missing", time.Now(), 0, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get(SettingConfidence); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.SetFloat(SettingConfidence, 0.25); err != nil {
		t.Fatalf("SetFloat() error = %v", err)
	}
	if err := repo.SetFloat(SettingConfidence, 0.6); err != nil {
		t.Fatalf("SetFloat() overwrite error = %v", err)
	}

	v, err := repo.GetFloat(SettingConfidence)
	if err != nil {
		t.Fatalf("GetFloat() error = %v", err)
	}
	if v != 0.6 {
		t.Errorf("expected 0.6, got %v", v)
	}

	if err := repo.Set("theme", "dark"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := repo.GetFloat("theme"); err == nil {
		t.Error("expected parse error for non-numeric setting")
	}
}
