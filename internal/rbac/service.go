package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// MutationObserver is notified after each committed mutation.
type MutationObserver interface {
	ObserveMutation(entity, action string)
}

// Service orchestrates the permission registries, the grant matrix, user
// overrides and effective-scope resolution.
type Service struct {
	repo     Repository
	guard    Guard
	logger   *slog.Logger
	observer MutationObserver
	validate *validator.Validate
}

// Option configures a Service.
type Option func(*Service)

// WithGuard sets the duplicate-submission guard used by toggles.
func WithGuard(g Guard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the mutation observer.
func WithObserver(o MutationObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewService constructs a Service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		guard:    NoopGuard{},
		logger:   slog.Default(),
		observer: nopObserver{},
		validate: NewValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopObserver struct{}

func (nopObserver) ObserveMutation(string, string) {}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs v's struct tags and folds failures into one
// ErrValidation such as "validation failed: name is required".
func ValidateStruct(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "min":
			msgs = append(msgs, fe.Field()+" is required")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, ", "))
}

// commit runs fn in one transaction and appends the entry it returns on the
// same transaction. Nothing is observed or logged unless both commit.
func (s *Service) commit(ctx context.Context, op string, fn func(context.Context, TxRepository) (audit.Entry, error)) error {
	var entry audit.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		return tx.Append(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("rbac: %s: %w", op, err)
	}
	s.observer.ObserveMutation(string(entry.EntityType), string(entry.Action))
	attrs := []any{
		slog.String("entity", string(entry.EntityType)),
		slog.String("action", string(entry.Action)),
	}
	if entry.EntityID != nil {
		attrs = append(attrs, slog.String("entity_id", *entry.EntityID))
	}
	if actor := shared.ActorFromContext(ctx); actor != uuid.Nil {
		attrs = append(attrs, slog.String("actor", actor.String()))
	}
	s.logger.InfoContext(ctx, "permission change", attrs...)
	return nil
}

// guarded holds the toggle guard for key while fn runs.
func (s *Service) guarded(ctx context.Context, key string, fn func() error) error {
	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
