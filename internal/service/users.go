package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/model"
)

type UserInput struct {
	Username    string            `json:"username" validate:"required,max=64"`
	Password    string            `json:"password" validate:"required,min=6"`
	FullName    string            `json:"full_name" validate:"required,max=120"`
	Departments model.Departments `json:"department"`
	Position    string            `json:"position"`
	Role        model.Role        `json:"role" validate:"required,oneof=admin support employee"`
}

// UserPatch changes only the fields that are set.
type UserPatch struct {
	Username    *string            `json:"username" validate:"omitempty,min=1,max=64"`
	Password    *string            `json:"password"`
	FullName    *string            `json:"full_name" validate:"omitempty,min=1,max=120"`
	Departments *model.Departments `json:"department"`
	Position    *string            `json:"position"`
	Role        *model.Role        `json:"role" validate:"omitempty,oneof=admin support employee"`
}

func (s *Service) CreateUser(ctx context.Context, actor *model.User, in UserInput) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := check(in); err != nil {
		return nil, err
	}
	return s.createUser(ctx, in)
}

// AddUser creates a user without an acting admin. Only operator commands
// running against the local database call it.
func (s *Service) AddUser(ctx context.Context, in UserInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := check(in); err != nil {
		return nil, err
	}
	return s.createUser(ctx, in)
}

func (s *Service) createUser(ctx context.Context, in UserInput) (*model.User, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, storeErr(err, "password")
	}
	now := s.now()
	u := &model.User{
		ID:           model.GenerateID(),
		Username:     in.Username,
		FullName:     in.FullName,
		Departments:  in.Departments,
		Position:     in.Position,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Departments == nil {
		u.Departments = model.Departments{}
	}
	if err := s.db.CreateUser(ctx, u); err != nil {
		return nil, storeErr(err, "User")
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username, "role": u.Role}).Info("Created user")
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.db.ListUsers(ctx)
	return users, storeErr(err, "User")
}

func (s *Service) UpdateUser(ctx context.Context, actor *model.User, id string, in UserPatch) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := check(in); err != nil {
		return nil, err
	}

	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, "User")
	}
	if in.Role != nil && u.Role == model.RoleAdmin && *in.Role != model.RoleAdmin {
		if err := s.ensureOtherAdmin(ctx); err != nil {
			return nil, err
		}
	}

	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Departments != nil {
		u.Departments = *in.Departments
	}
	if in.Position != nil {
		u.Position = *in.Position
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
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

// DeleteUser removes a user unless it is the actor, the last admin, or
// still responsible for open requests.
func (s *Service) DeleteUser(ctx context.Context, actor *model.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return apperr.BadRequest("You cannot delete your own user")
	}
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return storeErr(err, "User")
	}
	if u.Role == model.RoleAdmin {
		if err := s.ensureOtherAdmin(ctx); err != nil {
			return err
		}
	}
	open, err := s.db.CountOpenAssigned(ctx, id)
	if err != nil {
		return storeErr(err, "User")
	}
	if open > 0 {
		return apperr.BadRequest("The user has %d open assigned requests; reassign them first", open)
	}
	if err := s.db.DeleteUser(ctx, id); err != nil {
		return storeErr(err, "User")
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "actor": actor.Username}).Info("Deleted user")
	return nil
}

func (s *Service) ensureOtherAdmin(ctx context.Context) error {
	admins, err := s.db.CountUsersByRole(ctx, model.RoleAdmin)
	if err != nil {
		return storeErr(err, "User")
	}
	if admins <= 1 {
		return apperr.BadRequest("Cannot remove the last administrator")
	}
	return nil
}
