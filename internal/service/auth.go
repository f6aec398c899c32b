package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
)

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

// Login checks credentials and issues an access token. Repeated failures for
// the same username and client address lock further attempts for the lock
// window.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Invalid("username/password required")
	}

	key := strings.ToLower(username) + "|" + clientIP
	failures, err := s.db.CountFailedLogins(ctx, key, s.now().Add(-s.opts.LockWindow))
	if err != nil {
		return nil, storeErr(err, "login")
	}
	if failures >= s.opts.LockThreshold {
		s.metrics.Login("locked")
		return nil, apperr.TooManyRequests("Too many failed attempts. Try again later.")
	}

	u, err := s.db.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, storeErr(err, "user")
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, password) {
		if err := s.db.RecordFailedLogin(ctx, key, s.opts.LockWindow); err != nil {
			return nil, storeErr(err, "login")
		}
		s.metrics.Login("invalid")
		s.log.WithFields(logrus.Fields{"username": username, "ip": clientIP}).Warn("Failed login")
		return nil, apperr.Unauthorized("Incorrect username or password")
	}

	token, exp, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return nil, storeErr(err, "token")
	}
	s.metrics.Login("ok")
	return &LoginResult{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to its user by id, so renaming a user
// never hands their session to a later account with the old name.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Unauthorized("Could not validate credentials")
	}
	u, err := s.db.GetUser(ctx, claims.Subject)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Unauthorized("Could not validate credentials")
	}
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return u, nil
}

type ProfileInput struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	Password *string `json:"password" validate:"omitempty,min=6"`
}

// UpdateProfile changes the actor's own name or password. A blank password
// is ignored.
func (s *Service) UpdateProfile(ctx context.Context, actor *model.User, in ProfileInput) (*model.User, error) {
	if in.FullName != nil {
		trimmed := strings.TrimSpace(*in.FullName)
		in.FullName = &trimmed
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) == "" {
		in.Password = nil
	}
	if err := check(in); err != nil {
		return nil, err
	}

	u, err := s.db.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, storeErr(err, "password")
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = s.now()
	if err := s.db.UpdateUser(ctx, u); err != nil {
		return nil, storeErr(err, "User")
	}
	return u, nil
}
