// Package service is the authority for mesa's business rules: who may do
// what to a request, and what each change records. Transports call it with
// an authenticated actor and map the returned apperr kinds to responses.
package service

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/metrics"
	"github.com/baiirun/mesa/internal/model"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

type Options struct {
	TrashTTL      time.Duration
	LockThreshold int
	LockWindow    time.Duration
	MaxPageSize   int
}

func (o Options) withDefaults() Options {
	if o.TrashTTL <= 0 {
		o.TrashTTL = 14 * 24 * time.Hour
	}
	if o.LockThreshold <= 0 {
		o.LockThreshold = 8
	}
	if o.LockWindow <= 0 {
		o.LockWindow = 15 * time.Minute
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = MaxPageSize
	}
	return o
}

type Service struct {
	db      *db.DB
	tokens  *auth.Issuer
	log     *logrus.Logger
	metrics *metrics.Metrics
	opts    Options
}

// New wires a Service. m may be nil.
func New(store *db.DB, tokens *auth.Issuer, log *logrus.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{db: store, tokens: tokens, log: log, metrics: m, opts: opts.withDefaults()}
}

func (s *Service) now() time.Time {
	return s.db.Now()
}

func (s *Service) MaxPageSize() int {
	return s.opts.MaxPageSize
}

func requireStaff(actor *model.User) error {
	if actor == nil || !actor.Role.IsStaff() {
		return apperr.Forbidden("Not enough permissions")
	}
	return nil
}

func requireAdmin(actor *model.User) error {
	if actor == nil || actor.Role != model.RoleAdmin {
		return apperr.Forbidden("Not enough permissions")
	}
	return nil
}

// storeErr translates store sentinels into domain errors. what names the
// missing thing in not-found messages.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, db.ErrUsernameTaken):
		return apperr.BadRequest("Username already registered")
	case errors.Is(err, db.ErrStatusChanged):
		return apperr.Conflict("the request changed status, reload and try again")
	case errors.Is(err, db.ErrFeedbackExists):
		return apperr.Conflict("feedback was already submitted")
	case errors.Is(err, db.ErrNotFinished):
		return apperr.BadRequest("the request is not finished")
	case errors.Is(err, db.ErrAlreadyLive):
		return apperr.Conflict("a request with this id already exists")
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return &apperr.Error{Kind: apperr.KindInternal, Message: "internal server error", Err: err}
}
