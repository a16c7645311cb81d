// File: internal/mailbox/types.go
package mailbox

import "time"

// Session is the in-memory view of one disposable-mailbox session. A Client
// drives exactly one Session at a time; the on-disk projection of this struct
// is SessionRecord.
type Session struct {
	ID           string
	AuthToken    string
	Address      string
	Password     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastAccessed time.Time
	RestoreKeys  []string
}

// Record converts the session into its cacheable projection.
func (s *Session) Record() *SessionRecord {
	keys := make([]string, len(s.RestoreKeys))
	copy(keys, s.RestoreKeys)
	return &SessionRecord{
		SessionID:    s.ID,
		AuthToken:    s.AuthToken,
		EmailAddress: s.Address,
		Password:     s.Password,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed,
		RestoreKeys:  keys,
	}
}

// SessionRecord is the on-disk projection of a Session, keyed by session id in
// the cache file. Password is optional; readers must treat its absence as
// "none recorded", not an error.
type SessionRecord struct {
	SessionID    string    `json:"session_id"`
	AuthToken    string    `json:"auth_token"`
	EmailAddress string    `json:"email_address"`
	Password     string    `json:"password,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	RestoreKeys  []string  `json:"restore_keys"`
}

// Session converts the record back into an in-memory session.
func (r *SessionRecord) Session() *Session {
	keys := make([]string, len(r.RestoreKeys))
	copy(keys, r.RestoreKeys)
	return &Session{
		ID:           r.SessionID,
		AuthToken:    r.AuthToken,
		Address:      r.EmailAddress,
		Password:     r.Password,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		LastAccessed: r.LastAccessed,
		RestoreKeys:  keys,
	}
}

// Expired reports whether the record's expiry has passed at the given instant.
// A zero ExpiresAt means the provider never reported one; treat it as live and
// let a remote verification decide.
func (r *SessionRecord) Expired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return now.After(r.ExpiresAt)
}

// Mail is one received message. Immutable once fetched; ids are usable as
// "after id" cursors against the provider.
type Mail struct {
	ID          string    `json:"id"`
	FromAddr    string    `json:"fromAddr"`
	ToAddr      string    `json:"toAddr"`
	Subject     string    `json:"headerSubject"`
	Text        string    `json:"text"`
	HTML        string    `json:"html"`
	ReceivedAt  time.Time `json:"receivedAt"`
	RawSize     int64     `json:"rawSize"`
	DownloadURL string    `json:"downloadUrl"`
}

// Domain is one address domain offered by the provider.
type Domain struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AvailableVia []string `json:"availableVia"`
}
