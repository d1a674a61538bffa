package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/rbac"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// MutationObserver is notified after a committed role change.
type MutationObserver interface {
	ObserveMutation(entity, action string)
}

// Service handles profile reads and base-role changes.
type Service struct {
	repo     rbac.Repository
	logger   *slog.Logger
	observer MutationObserver
	validate *validator.Validate
}

// NewService builds a Service over the permission store.
func NewService(repo rbac.Repository, logger *slog.Logger, observer MutationObserver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, observer: observer, validate: rbac.NewValidator()}
}

// ListProfiles returns all profiles ordered by name.
func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list profiles: %w", err)
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// GetProfile fetches one profile.
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("users: get profile: %w", err)
	}
	return p, nil
}

// ChangeRole points a profile at another role. The code must name an
// existing role; it is matched after upper-casing.
func (s *Service) ChangeRole(ctx context.Context, userID uuid.UUID, req ChangeRoleRequest) (Profile, error) {
	req.Role = rbac.NormalizeRoleCode(req.Role)
	if err := rbac.ValidateStruct(s.validate, req); err != nil {
		return Profile{}, err
	}
	var (
		updated Profile
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		current, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.GetRoleByCode(ctx, req.Role); errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: role %s does not exist", shared.ErrValidation, req.Role)
		} else if err != nil {
			return err
		}
		updated = current
		if current.Role == req.Role {
			return nil
		}
		if err := tx.UpdateProfileRole(ctx, userID, req.Role); err != nil {
			return err
		}
		updated.Role = req.Role
		changed = true
		return tx.Append(ctx, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityProfile,
			EntityID:   audit.UUIDID(userID),
			Details:    audit.ProfileRoleChanged{UserID: userID, OldRole: current.Role, NewRole: req.Role},
		})
	})
	if err != nil {
		return Profile{}, fmt.Errorf("users: change role: %w", err)
	}
	if changed {
		if s.observer != nil {
			s.observer.ObserveMutation(string(audit.EntityProfile), string(audit.ActionUpdate))
		}
		s.logger.InfoContext(ctx, "profile role changed",
			slog.String("user_id", userID.String()),
			slog.String("role", req.Role))
	}
	return updated, nil
}
