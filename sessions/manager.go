package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultCookieName is the cookie holding the signed session reference
	DefaultCookieName = "sid"
	// touchInterval bounds how often a live session's expiry is pushed forward
	touchInterval = time.Minute
)

// Options configures a Manager
type Options struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Manager issues, resolves and destroys sessions
type Manager struct {
	store Store
	opts  Options
	now   func() time.Time
}

// NewManager creates a session manager backed by store
func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{store: store, opts: opts, now: time.Now}
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

// Create starts a new session for data and writes its cookie. Any session
// already referenced by r is destroyed first so ids never survive a login.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, data Data) (*Session, error) {
	if r != nil {
		if id, err := m.sessionID(r); err == nil {
			if err := m.store.Destroy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("failed to destroy previous session: %w", err)
			}
		}
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Data:      data,
		ExpiresAt: now.Add(m.opts.TTL),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := m.sign(s.ID, now)
	if err != nil {
		return nil, err
	}
	m.writeCookie(w, token, m.opts.TTL)
	return s, nil
}

// Resolve returns the live session referenced by r. Missing, forged and
// expired sessions all yield ErrNotFound. A live session has its idle
// window extended.
func (m *Manager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	id, err := m.sessionID(r)
	if err != nil {
		return nil, ErrNotFound
	}

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if s.Expired(now) {
		if err := m.store.Destroy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrNotFound
	}

	if s.ExpiresAt.Sub(now) < m.opts.TTL-touchInterval {
		expiresAt := now.Add(m.opts.TTL)
		if err := m.store.Touch(ctx, id, expiresAt); err != nil {
			return nil, err
		}
		s.ExpiresAt = expiresAt
		if cookie, err := r.Cookie(m.opts.CookieName); err == nil {
			m.writeCookie(w, cookie.Value, m.opts.TTL)
		}
	}

	return s, nil
}

// Destroy ends the session referenced by r, if any, and clears its cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.writeCookie(w, "", -1)

	id, err := m.sessionID(r)
	if err != nil {
		return nil
	}
	if err := m.store.Destroy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Purge deletes every expired session from the store
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now())
}

func (m *Manager) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNotFound
	}
	return m.verify(cookie.Value)
}

func (m *Manager) sign(id string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:       id,
		IssuedAt: jwt.NewNumericDate(now),
	})
	signed, err := token.SignedString(m.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) verify(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.ID == "" {
		return "", ErrNotFound
	}
	return claims.ID, nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}
