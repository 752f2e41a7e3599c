package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/auth/bearer"
	"coterie/cmd/internal/metrics"
	"coterie/cmd/internal/storage"
)

// CredentialVerifier resolves login credentials to a user, uniformly failing
// with identity.ErrInvalidCredentials.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, handle, password string) (identity.User, error)
}

// LoginThrottle bounds login attempt rates. Enforce counts the attempt and
// returns ErrLoginThrottled (possibly wrapped) when the caller must back off.
type LoginThrottle interface {
	Enforce(ctx context.Context, handle string) error
}

// Manager orchestrates the session lifecycle: login, bearer resolution,
// refresh and logout. It owns no state beyond its collaborators.
type Manager struct {
	log      *slog.Logger
	store    Store
	creds    CredentialVerifier
	throttle LoginThrottle
	metrics  *metrics.Set
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithThrottle installs a login throttle.
func WithThrottle(t LoginThrottle) ManagerOption {
	return func(m *Manager) {
		if m == nil || t == nil {
			return
		}
		m.throttle = t
	}
}

// WithMetrics installs the metrics set.
func WithMetrics(set *metrics.Set) ManagerOption {
	return func(m *Manager) {
		if m == nil || set == nil {
			return
		}
		m.metrics = set
	}
}

// NewManager constructs a Manager.
func NewManager(log *slog.Logger, store Store, creds CredentialVerifier, opts ...ManagerOption) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil || creds == nil {
		return nil, ErrConfig
	}

	m := &Manager{log: log, store: store, creds: creds}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m, nil
}

// Login verifies credentials and issues a fresh bearer token.
//
// Failure is uniform: an unknown handle and a wrong password both surface as
// identity.ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, now time.Time, handle, password string) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if m.throttle != nil {
		if err := m.throttle.Enforce(ctx, handle); err != nil {
			if errors.Is(err, ErrLoginThrottled) {
				m.countLogin("throttled")
				return "", err
			}
			// Throttle backend down: fail open.
			m.log.Warn("auth.login.throttle_unavailable", "err", err)
		}
	}

	u, err := m.creds.VerifyCredentials(ctx, handle, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			m.countLogin("invalid")
		} else {
			m.countLogin("error")
		}
		return "", err
	}

	res, err := m.store.Create(ctx, now, u.ID)
	if err != nil {
		m.countLogin("error")
		return "", err
	}
	if res.Evicted > 0 {
		m.log.Info("auth.session.evicted", "user_id", u.ID, "count", res.Evicted)
		if m.metrics != nil {
			m.metrics.SessionEvictions.Add(float64(res.Evicted))
		}
	}

	tok, err := bearer.Mint(res.Session.ID, res.Secret)
	if err != nil {
		return "", err
	}

	m.countLogin("ok")
	return tok, nil
}

// ResolveBearer resolves a bearer token to its owning user.
// Fails bearer.ErrMalformedToken before any storage access, then
// ErrSessionNotFound / ErrSessionInvalid from the store.
func (m *Manager) ResolveBearer(ctx context.Context, now time.Time, tok string) (identity.User, Session, error) {
	sid, secret, err := bearer.Unpack(tok)
	if err != nil {
		return identity.User{}, Session{}, err
	}
	return m.store.Resolve(ctx, now, sid, secret)
}

// RefreshBearer rotates the token's secret and returns a replacement token.
// The prior token is invalid the moment this returns.
func (m *Manager) RefreshBearer(ctx context.Context, now time.Time, tok string) (string, error) {
	sid, secret, err := bearer.Unpack(tok)
	if err != nil {
		return "", err
	}

	row, newSecret, err := m.store.Refresh(ctx, now, sid, secret)
	if err != nil {
		return "", err
	}

	if m.metrics != nil {
		m.metrics.SessionRefreshes.Inc()
	}
	return bearer.Mint(row.ID, newSecret)
}

// Logout revokes the token's session. Revoking a session that no longer
// exists is a no-op success; presenting a wrong secret is not.
func (m *Manager) Logout(ctx context.Context, now time.Time, tok string) error {
	sid, secret, err := bearer.Unpack(tok)
	if err != nil {
		return err
	}

	_, _, err = m.store.Resolve(ctx, now, sid, secret)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil
	case err != nil:
		return err
	}

	return m.store.Revoke(ctx, sid)
}

// Sessions lists session metadata for a user.
func (m *Manager) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return m.store.ListForUser(ctx, userID)
}

func (m *Manager) countLogin(result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.LoginsTotal.WithLabelValues(result).Inc()
}

// Retryable reports whether err is a transient storage failure where a read
// may be retried by the caller.
func Retryable(err error) bool {
	return errors.Is(err, storage.ErrUnavailable)
}
