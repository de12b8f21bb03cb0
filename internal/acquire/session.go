package acquire

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession      = errors.New("no cloud credential in session")
	ErrSessionExpired = errors.New("cloud credential expired")
)

// Session carries the cloud-provider credential of one editing session. It is
// passed explicitly to every import and never stored process-wide.
type Session struct {
	token   string
	subject string
	expires time.Time
}

// NewSession wraps an access token. JWT credentials have their sub and exp claims
// read without verification; the provider checks the signature on use.
func NewSession(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrNoSession
	}
	s := &Session{token: token}
	if strings.Count(token, ".") == 2 {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
			s.subject, _ = claims.GetSubject()
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				s.expires = exp.Time
			}
		}
	}
	if err := s.Check(time.Now()); err != nil {
		return nil, err
	}
	return s, nil
}

// Check reports whether the credential is usable at now.
func (s *Session) Check(now time.Time) error {
	if s == nil || s.token == "" {
		return ErrNoSession
	}
	if !s.expires.IsZero() && !now.Before(s.expires) {
		return ErrSessionExpired
	}
	return nil
}

func (s *Session) Token() string      { return s.token }
func (s *Session) Subject() string    { return s.subject }
func (s *Session) Expires() time.Time { return s.expires }
