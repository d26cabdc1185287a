package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 30 * time.Minute

//State of a session token as seen on the latest request.
type State int

const (
	Anonymous State = iota
	Authenticated
	Expired
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	case LoggedOut:
		return "logged_out"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	LoginAt   time.Time `json:"loginAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

//Manager issues signed session tokens and tracks which of them are still
//live. Expiry is only checked when a token is resolved.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu   sync.Mutex
	live map[string]Session
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		live:   make(map[string]Session),
	}
}

//TTL returns the lifetime of new sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

//Login starts an authenticated session and returns its signed token.
func (m *Manager) Login(username, role string) (string, Session, error) {
	now := m.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		LoginAt:   now,
		ExpiresAt: now.Add(m.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(sess.LoginAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("auth: failed to sign session token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	m.live[sess.ID] = sess
	return signed, sess, nil
}

//Resolve returns the session behind token and its state. A live session
//past its lifetime is dropped and reported as Expired once; after that the
//token is Anonymous like any other unknown token.
func (m *Manager) Resolve(token string) (Session, State) {
	if token == "" {
		return Session{}, Anonymous
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return m.expireLocked(claims.ID)
	case err != nil:
		log.WithError(err).Debug("rejected session token")
		return Session{}, Anonymous
	}

	sess, ok := m.live[claims.ID]
	if !ok {
		return Session{}, Anonymous
	}
	if m.now().After(sess.ExpiresAt) {
		return m.expireLocked(claims.ID)
	}
	return sess, Authenticated
}

//Logout clears the session behind token, whether or not it already expired.
func (m *Manager) Logout(token string) State {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Anonymous
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.live[claims.ID]; ok {
		delete(m.live, claims.ID)
		log.WithField("username", sess.Username).Info("session logged out")
	}
	return LoggedOut
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	return m.secret, nil
}

func (m *Manager) expireLocked(id string) (Session, State) {
	sess, ok := m.live[id]
	if !ok {
		return Session{}, Anonymous
	}
	delete(m.live, id)
	log.WithField("username", sess.Username).Info("session expired")
	return sess, Expired
}

//pruneLocked drops sessions nobody came back for within a further TTL, so
//their owners still see Expired if they return soon after expiry.
func (m *Manager) pruneLocked(now time.Time) {
	for id, sess := range m.live {
		if now.After(sess.ExpiresAt.Add(m.ttl)) {
			delete(m.live, id)
		}
	}
}
