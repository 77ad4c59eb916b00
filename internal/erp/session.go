package erp

import (
	"context"
	"sync"

	"basket-order-service/internal/util"

	"go.uber.org/zap"
)

// Authenticator opens a new backend session.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// SessionManager holds the token shared by every in-flight request.
// Acquire and Refresh serialize on one mutex, so concurrent flows block briefly while a
// refresh is running instead of each re-authenticating and invalidating the others' token.
type SessionManager struct {
	mu     sync.Mutex
	auth   Authenticator
	token  string
	logger *zap.Logger
}

// NewSessionManager creates a session manager backed by auth
func NewSessionManager(auth Authenticator) *SessionManager {
	return &SessionManager{
		auth:   auth,
		logger: util.GetLogger(),
	}
}

// Acquire returns the current token, authenticating first if there is none.
func (s *SessionManager) Acquire(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}
	return s.authenticateLocked(ctx)
}

// Refresh replaces stale with a new token. If another flow already refreshed it,
// the newer token is returned without authenticating again.
func (s *SessionManager) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.token != stale {
		return s.token, nil
	}
	return s.authenticateLocked(ctx)
}

// Invalidate drops stale if it is still the current token.
func (s *SessionManager) Invalidate(stale string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == stale {
		s.token = ""
	}
}

func (s *SessionManager) authenticateLocked(ctx context.Context) (string, error) {
	token, err := s.auth.Authenticate(ctx)
	if err != nil {
		s.token = ""
		s.logger.Error("ERP authentication failed", zap.Error(err))
		return "", err
	}

	s.token = token
	util.SessionRefreshTotal.Inc()
	s.logger.Info("ERP session established")
	return token, nil
}
