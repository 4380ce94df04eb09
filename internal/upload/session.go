package upload

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Session holds the credentials for one video transfer. It is consumed by
// the first CompleteUpload that gets past validation, successful or not.
type Session struct {
	AssetID   string    `json:"assetId"`
	UploadURL string    `json:"uploadUrl"`
	AccessKey string    `json:"-"`
	IssuedAt  time.Time `json:"issuedAt"`

	consumed atomic.Bool
}

func (s *Session) complete() bool {
	return s != nil && s.AssetID != "" && s.UploadURL != "" && s.AccessKey != ""
}

func (s *Session) consume() bool {
	return s.consumed.CompareAndSwap(false, true)
}

// Sessions parks issued sessions between the begin and complete requests.
// Take removes the entry, so a session can be completed at most once.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*Session
	ttl     time.Duration
	now     func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		entries: make(map[string]*Session),
		ttl:     ttl,
		now:     time.Now,
	}
}

func sessionKey(actorID, assetID string) string {
	return actorID + "/" + assetID
}

func (r *Sessions) Put(actorID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, e := range r.entries {
		if now.Sub(e.IssuedAt) > r.ttl {
			slog.Warn("upload session expired, remote asset orphaned", "asset_id", e.AssetID)
			delete(r.entries, k)
		}
	}
	r.entries[sessionKey(actorID, s.AssetID)] = s
}

// Take returns the session issued to actorID for assetID and forgets it.
func (r *Sessions) Take(actorID, assetID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(actorID, assetID)
	s, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	delete(r.entries, key)
	if r.now().Sub(s.IssuedAt) > r.ttl {
		return nil, false
	}
	return s, true
}
