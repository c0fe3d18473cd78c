package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/repository"
	"github.com/gleadbet/nest/internal/session"
)

// AuthService runs the login flow and resolves browser cookies into
// server-side sessions.
type AuthService struct {
	provider Provider
	sessions repository.Sessions
	codec    *session.CookieCodec
	log      *logger.Logger
}

func NewAuthService(provider Provider, sessions repository.Sessions, codec *session.CookieCodec, log *logger.Logger) *AuthService {
	return &AuthService{provider: provider, sessions: sessions, codec: codec, log: log}
}

func (s *AuthService) LoginURL(state string) string {
	return s.provider.LoginURL(state)
}

// HandleCallback exchanges the provider code, creates a session and returns
// it with the signed cookie value.
func (s *AuthService) HandleCallback(ctx context.Context, code string) (*session.Session, string, error) {
	cred, err := s.provider.Exchange(ctx, code)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("code_exchange_failed", "err", err)
		}
		return nil, "", nest.E(nest.KindAuthRequired, "authorization code exchange failed")
	}

	sess := &session.Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Credential:  cred,
		DeviceNames: map[string]string{},
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	cookie, err := s.codec.Encode(sess.ID)
	if err != nil {
		return nil, "", fmt.Errorf("encode session cookie: %w", err)
	}
	if s.log != nil {
		s.log.Infow("session_created", "session", sess.ID)
	}
	return sess, cookie, nil
}

// Resolve verifies a cookie and loads the session behind it.
func (s *AuthService) Resolve(ctx context.Context, cookie string) (*session.Session, error) {
	sid, err := s.codec.Decode(cookie)
	if err != nil {
		return nil, nest.E(nest.KindAuthRequired, "invalid session cookie")
	}
	sess, err := s.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nest.E(nest.KindAuthRequired, "session expired")
		}
		return nil, fmt.Errorf("load session %s: %w", sid, err)
	}
	return sess, nil
}

func (s *AuthService) Status(sess *session.Session) AuthStatus {
	if sess == nil || sess.Credential == nil {
		return AuthStatus{Authenticated: false}
	}
	if sess.AuthError != "" {
		return AuthStatus{Authenticated: false, Error: sess.AuthError}
	}
	return AuthStatus{Authenticated: true}
}

// Logout destroys the server-side session. Clearing the cookie is the
// handler's job.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session %s: %w", sess.ID, err)
	}
	if s.log != nil {
		s.log.Infow("session_destroyed", "session", sess.ID)
	}
	return nil
}
