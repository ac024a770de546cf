package live

import (
	"time"

	"github.com/sibisee/sibisee/internal/store"
)

// StoreRecorder persists session lifecycles in the session table.
type StoreRecorder struct {
	sessions *store.SessionRepository
}

// NewStoreRecorder creates a Recorder backed by s.
func NewStoreRecorder(s *store.Store) *StoreRecorder {
	return &StoreRecorder{sessions: s.Sessions()}
}

// SessionStarted inserts the session record.
func (r *StoreRecorder) SessionStarted(info Info) error {
	return r.sessions.Create(&store.Session{
		ID:          info.ID,
		Transport:   string(info.Transport),
		ICEDegraded: info.ICEDegraded,
		StartedAt:   info.StartedAt,
	})
}

// SessionEnded stores the final counters.
func (r *StoreRecorder) SessionEnded(info Info) error {
	ended := time.Now()
	if info.EndedAt != nil {
		ended = *info.EndedAt
	}
	return r.sessions.Finish(info.ID, ended, info.Frames, info.FailedFrames)
}
