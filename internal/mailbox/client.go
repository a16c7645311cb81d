// File: internal/mailbox/client.go
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/network"
)

// Client talks to a DropMail-compatible GraphQL API. It drives at most one
// session at a time and mirrors session state into the cache after every
// successful remote call. Methods are safe for concurrent use, though the
// usual caller is a single registration flow.
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	cache        *Cache
	log          *zap.Logger
	maxAttempts  int
	retryBackoff time.Duration
	pollInterval time.Duration

	mu         sync.Mutex
	session    *Session
	lastMailID string
	seen       map[string]struct{}
}

// NewClient builds a mailbox client from configuration. A nil httpClient gets
// the shared decompressing transport; a nil cache disables persistence, which
// also makes RestoreSession unavailable. The auth token comes from
// configuration when set and is minted fresh otherwise.
func NewClient(cfg config.Interface, httpClient *http.Client, cache *Cache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	mailCfg := cfg.Mailbox()
	netCfg := cfg.Network()

	if httpClient == nil {
		clientCfg := network.NewDefaultClientConfig()
		clientCfg.RequestTimeout = netCfg.Timeout
		httpClient = network.NewClient(clientCfg)
	}

	token := mailCfg.AuthToken
	if token == "" {
		token = newAuthToken()
	}

	limit := rate.Inf
	if mailCfg.RateLimit > 0 {
		limit = rate.Limit(mailCfg.RateLimit)
	}

	return &Client{
		baseURL:      strings.TrimRight(mailCfg.BaseURL, "/"),
		authToken:    token,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(limit, 1),
		cache:        cache,
		log:          logger.Named("mailbox"),
		maxAttempts:  netCfg.MaxRetries,
		retryBackoff: netCfg.RetryBackoff,
		pollInterval: mailCfg.PollInterval,
		seen:         map[string]struct{}{},
	}
}

// newAuthToken mints a random 16-character API token.
func newAuthToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Session returns a snapshot of the active session, or nil when none exists.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	snap := *c.session
	snap.RestoreKeys = append([]string(nil), c.session.RestoreKeys...)
	return &snap
}

// SetPassword attaches a password to the active session and persists it, so a
// later restore can reuse the credential set.
func (c *Client) SetPassword(password string) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	c.session.Password = password
	c.mu.Unlock()
	c.persist(time.Time{})
}

// CreateSession opens a fresh provider session with one address and caches
// it. A non-empty preferSuffix asks for an address under a matching domain;
// preference failures degrade to the provider default instead of failing the
// call.
func (c *Client) CreateSession(ctx context.Context, preferSuffix string) (*Session, error) {
	preferredID := ""
	if preferSuffix != "" {
		domains, err := c.Domains(ctx)
		if err != nil {
			c.log.Warn("Domain listing failed, using provider default address.", zap.Error(err))
		} else if preferredID = matchDomain(domains, preferSuffix); preferredID == "" {
			c.log.Warn("No provider domain matches preference.", zap.String("preference", preferSuffix))
		}
	}

	token := c.token()
	payload, err := c.introduceSession(ctx, token, preferredID)
	if err != nil && preferredID != "" {
		c.log.Warn("Session with preferred domain failed, retrying without preference.", zap.Error(err))
		payload, err = c.introduceSession(ctx, token, "")
	}
	if err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("mailbox: provider returned no session id")
	}
	if len(payload.Addresses) == 0 || payload.Addresses[0].Address == "" {
		return nil, ErrNoAddress
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:           payload.ID,
		AuthToken:    token,
		Address:      payload.Addresses[0].Address,
		ExpiresAt:    payload.ExpiresAt,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if key := payload.Addresses[0].RestoreKey; key != "" {
		sess.RestoreKeys = append(sess.RestoreKeys, key)
	}

	c.setSession(sess)
	c.persist(time.Time{})

	// The no-preference fallback can land on an arbitrary domain; one more
	// address under the preferred domain fixes that without failing the call.
	if preferredID != "" && !addressMatchesSuffix(sess.Address, preferSuffix) {
		if addr, err := c.AddAddress(ctx, preferredID); err != nil {
			c.log.Warn("Could not add preferred-domain address, keeping default.", zap.Error(err))
		} else {
			c.log.Info("Switched to preferred-domain address.", zap.String("address", addr))
		}
	}

	c.log.Info("Mailbox session created.",
		zap.String("session_id", sess.ID),
		zap.String("address", c.Session().Address),
		zap.Time("expires_at", sess.ExpiresAt))
	return c.Session(), nil
}

func (c *Client) introduceSession(ctx context.Context, token, domainID string) (sessionPayload, error) {
	var out struct {
		IntroduceSession sessionPayload `json:"introduceSession"`
	}
	var err error
	if domainID != "" {
		err = c.doAs(ctx, token, mutationIntroduceSessionWithDomain, map[string]interface{}{"domainId": domainID}, &out)
	} else {
		err = c.doAs(ctx, token, mutationIntroduceSession, nil, &out)
	}
	return out.IntroduceSession, err
}

// AddAddress attaches one more address under domainID to the active session
// and records its restore key.
func (c *Client) AddAddress(ctx context.Context, domainID string) (string, error) {
	sess := c.Session()
	if sess == nil {
		return "", ErrNoSession
	}
	var out struct {
		IntroduceAddress *addressPayload `json:"introduceAddress"`
	}
	vars := map[string]interface{}{"sessionId": sess.ID, "domainId": domainID}
	if err := c.do(ctx, mutationIntroduceAddress, vars, &out); err != nil {
		return "", err
	}
	if out.IntroduceAddress == nil || out.IntroduceAddress.Address == "" {
		return "", ErrNoAddress
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.Address = out.IntroduceAddress.Address
		if key := out.IntroduceAddress.RestoreKey; key != "" {
			c.session.RestoreKeys = append(c.session.RestoreKeys, key)
		}
	}
	c.mu.Unlock()
	c.persist(time.Time{})
	return out.IntroduceAddress.Address, nil
}

// Domains lists the address domains the provider currently offers.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var out struct {
		Domains []Domain `json:"domains"`
	}
	if err := c.do(ctx, queryDomains, nil, &out); err != nil {
		return nil, err
	}
	return out.Domains, nil
}

// ListMail fetches messages for the active session. An empty afterID returns
// the whole inbox; otherwise only messages newer than that id come back.
func (c *Client) ListMail(ctx context.Context, afterID string) ([]Mail, error) {
	sess := c.Session()
	if sess == nil {
		return nil, ErrNoSession
	}

	var out struct {
		Session *mailboxPayload `json:"session"`
	}
	query := queryMails
	vars := map[string]interface{}{"sessionId": sess.ID}
	if afterID != "" {
		query = queryMailsAfter
		vars["mailId"] = afterID
	}
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, ErrSessionExpired
	}

	mails := out.Session.Mails
	if afterID != "" {
		mails = out.Session.MailsAfterID
	}
	c.persist(time.Time{})
	return mails, nil
}

// WaitForMail polls until a message the client has not returned before
// arrives, then returns it. The poll cursor advances only past returned
// messages, so a burst of arrivals is drained one call at a time in received
// order. Returns ErrWaitTimeout when the window closes empty.
func (c *Client) WaitForMail(ctx context.Context, timeout time.Duration) (*Mail, error) {
	if c.Session() == nil {
		return nil, ErrNoSession
	}
	deadline := time.Now().Add(timeout)

	for {
		c.mu.Lock()
		cursor := c.lastMailID
		c.mu.Unlock()

		mails, err := c.ListMail(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for i := range mails {
			mail := mails[i]
			c.mu.Lock()
			_, dup := c.seen[mail.ID]
			if !dup {
				c.seen[mail.ID] = struct{}{}
				c.lastMailID = mail.ID
			}
			c.mu.Unlock()
			if !dup {
				c.log.Info("New mail received.",
					zap.String("mail_id", mail.ID),
					zap.String("from", mail.FromAddr),
					zap.String("subject", mail.Subject))
				return &mail, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrWaitTimeout
		}
		wait := c.pollInterval
		if wait <= 0 {
			wait = time.Second
		}
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// VerifySession asks the provider whether the active session still exists.
// A null session answer is a clean false, not an error.
func (c *Client) VerifySession(ctx context.Context) (bool, error) {
	sess := c.Session()
	if sess == nil {
		return false, ErrNoSession
	}
	var out struct {
		Session *sessionPayload `json:"session"`
	}
	if err := c.do(ctx, querySessionStatus, map[string]interface{}{"sessionId": sess.ID}, &out); err != nil {
		return false, err
	}
	if out.Session == nil {
		return false, nil
	}
	c.persist(out.Session.ExpiresAt)
	return true, nil
}

// VerifyRecord asks the provider about a cached record's session without
// adopting it. The active session, cache and mail cursor are left untouched,
// so it is safe for bulk liveness sweeps. A clean false means the provider no
// longer knows the session.
func (c *Client) VerifyRecord(ctx context.Context, rec *SessionRecord) (bool, error) {
	if rec == nil || rec.SessionID == "" {
		return false, ErrNoSession
	}
	token := rec.AuthToken
	if token == "" {
		token = c.token()
	}
	var out struct {
		Session *sessionPayload `json:"session"`
	}
	if err := c.doAs(ctx, token, querySessionStatus, map[string]interface{}{"sessionId": rec.SessionID}, &out); err != nil {
		return false, err
	}
	return out.Session != nil, nil
}

// RestoreSession adopts a cached session by id. A session the provider still
// recognizes is adopted as-is without spending restore keys. An expired one
// is rebuilt: a fresh provider session is opened and the cached restore keys
// are tried in order until one reattaches the old address. Returns false with
// a nil error when the record is unknown or every key is rejected. A restore
// that does not succeed leaves the cached record and whatever session the
// client already held untouched.
func (c *Client) RestoreSession(ctx context.Context, sessionID string) (bool, error) {
	if c.cache == nil {
		return false, fmt.Errorf("mailbox: session cache not configured")
	}
	rec, ok, err := c.cache.Get(sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		c.log.Info("Session not found in cache.", zap.String("session_id", sessionID))
		return false, nil
	}

	token := rec.AuthToken
	if token == "" {
		token = c.token()
	}

	var status struct {
		Session *sessionPayload `json:"session"`
	}
	if err := c.doAs(ctx, token, querySessionStatus, map[string]interface{}{"sessionId": rec.SessionID}, &status); err != nil {
		return false, err
	}
	if status.Session != nil {
		sess := rec.Session()
		sess.AuthToken = token
		c.adopt(token, sess)
		c.persist(status.Session.ExpiresAt)
		c.primeCursor(ctx)
		c.log.Info("Cached session is still live.",
			zap.String("session_id", sessionID),
			zap.String("address", rec.EmailAddress))
		return true, nil
	}

	c.log.Info("Cached session expired, attempting address restore.",
		zap.String("session_id", sessionID),
		zap.Int("restore_keys", len(rec.RestoreKeys)))

	payload, err := c.introduceSession(ctx, token, "")
	if err != nil {
		return false, err
	}
	if payload.ID == "" {
		return false, fmt.Errorf("mailbox: provider returned no session id")
	}

	for _, key := range rec.RestoreKeys {
		addr, err := c.restoreAddress(ctx, token, payload.ID, rec.EmailAddress, key)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				c.log.Debug("Restore key rejected.", zap.Error(err))
				continue
			}
			return false, err
		}

		address := rec.EmailAddress
		if addr.Address != "" && !strings.EqualFold(addr.Address, rec.EmailAddress) {
			c.log.Warn("Provider restored a different address than cached.",
				zap.String("cached", rec.EmailAddress),
				zap.String("restored", addr.Address))
			address = addr.Address
		}

		keys := append([]string(nil), rec.RestoreKeys...)
		if addr.RestoreKey != "" && !containsKey(keys, addr.RestoreKey) {
			keys = append(keys, addr.RestoreKey)
		}
		now := time.Now().UTC()
		sess := &Session{
			ID:           payload.ID,
			AuthToken:    token,
			Address:      address,
			Password:     rec.Password,
			ExpiresAt:    payload.ExpiresAt,
			CreatedAt:    rec.CreatedAt,
			LastAccessed: now,
			RestoreKeys:  keys,
		}
		c.adopt(token, sess)
		c.persist(time.Time{})
		if err := c.cache.Remove(rec.SessionID); err != nil {
			c.log.Warn("Failed to drop superseded session record.", zap.Error(err))
		}
		c.log.Info("Session restored under new id.",
			zap.String("old_session_id", rec.SessionID),
			zap.String("session_id", sess.ID),
			zap.String("address", sess.Address))
		return true, nil
	}

	c.log.Warn("All restore keys rejected, session not restored.",
		zap.String("session_id", sessionID))
	return false, nil
}

func (c *Client) restoreAddress(ctx context.Context, token, sessionID, mailAddress, key string) (*addressPayload, error) {
	var out struct {
		RestoreAddress *addressPayload `json:"restoreAddress"`
	}
	vars := map[string]interface{}{"input": map[string]interface{}{
		"sessionId":   sessionID,
		"mailAddress": mailAddress,
		"restoreKey":  key,
	}}
	if err := c.doAs(ctx, token, mutationRestoreAddress, vars, &out); err != nil {
		return nil, err
	}
	if out.RestoreAddress == nil {
		return nil, &APIError{Messages: []string{"restoreAddress returned null"}}
	}
	return out.RestoreAddress, nil
}

// primeCursor fast-forwards the mail cursor past the restored session's
// backlog so WaitForMail only reports messages newer than the restore point.
func (c *Client) primeCursor(ctx context.Context) {
	mails, err := c.ListMail(ctx, "")
	if err != nil {
		c.log.Debug("Could not prime mail cursor on restore.", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range mails {
		c.seen[m.ID] = struct{}{}
		c.lastMailID = m.ID
	}
}

// token returns the auth token requests are currently made under.
func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.lastMailID = ""
	c.seen = map[string]struct{}{}
}

// adopt installs a session together with the token it lives under and resets
// the mail cursor.
func (c *Client) adopt(token string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
	c.session = s
	c.lastMailID = ""
	c.seen = map[string]struct{}{}
}

// persist stamps last-accessed on the active session, folds in a fresher
// expiry when given one, and mirrors the record to the cache.
func (c *Client) persist(expiresAt time.Time) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	c.session.LastAccessed = time.Now().UTC()
	if !expiresAt.IsZero() {
		c.session.ExpiresAt = expiresAt
	}
	rec := c.session.Record()
	c.mu.Unlock()

	if c.cache == nil {
		return
	}
	if err := c.cache.Put(rec); err != nil {
		c.log.Warn("Failed to persist session record.", zap.Error(err))
	}
}

func matchDomain(domains []Domain, prefer string) string {
	trimmed := normalizeSuffix(prefer)
	if trimmed == "" {
		return ""
	}
	for _, d := range domains {
		if domainMatchesSuffix(d.Name, trimmed) {
			return d.ID
		}
	}
	return ""
}

func addressMatchesSuffix(address, prefer string) bool {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	return domainMatchesSuffix(address[at+1:], normalizeSuffix(prefer))
}

func normalizeSuffix(prefer string) string {
	return strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(prefer)), "@"), ".")
}

func domainMatchesSuffix(name, trimmed string) bool {
	if trimmed == "" {
		return false
	}
	name = strings.ToLower(name)
	return name == trimmed || strings.HasSuffix(name, "."+trimmed)
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
