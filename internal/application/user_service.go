package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/roombook/internal/authz"
	"github.com/example/roombook/internal/events"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// UserService manages the directory of known subjects.
type UserService struct {
	users        UserRepository
	policy       authz.Policy
	now          func() time.Time
	storeTimeout time.Duration
	logger       *slog.Logger
	cascade      cascadeNotifier
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, now, DefaultStoreTimeout, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, now func() time.Time, storeTimeout time.Duration, logger *slog.Logger) *UserService {
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &UserService{users: users, now: now, storeTimeout: storeTimeout, logger: defaultLogger(logger)}
}

// WithCascadeEvents makes DeleteUser publish ReservationDeleted for every
// reservation the user owned.
func (s *UserService) WithCascadeEvents(reservations ReservationLister, publisher events.Publisher) *UserService {
	s.cascade = cascadeNotifier{reservations: reservations, events: publisher}
	return s
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// RegisterUser adds a subject to the directory. It is reserved for trusted
// operator tooling and performs no policy check.
func (s *UserService) RegisterUser(ctx context.Context, input UserInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RegisterUser", "user_id", input.ID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to register user", err)
			return
		}
		logger.InfoContext(ctx, "user registered", "role", user.Role)
	}()

	normalized := normalizeUserInput(input)
	if vErr := validateStruct(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	user = User{
		ID:          normalized.ID,
		DisplayName: normalized.DisplayName,
		Role:        normalized.Role,
		CreatedAt:   s.now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err = s.users.CreateUser(storeCtx, user); err != nil {
		err = mapStoreError(err)
		return
	}
	return
}

// DeleteUser removes a user and every reservation they own.
func (s *UserService) DeleteUser(ctx context.Context, subject *authz.Subject, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteUser",
		"subject_id", subjectID(subject),
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to delete user", err)
			return
		}
		logger.InfoContext(ctx, "user deleted")
	}()

	if decision := s.policy.Decide(subject, authz.DeleteUser, authz.Target{}); !decision.Allowed() {
		return denial(decision)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	doomed, err := s.cascade.ownedBy(storeCtx, userID)
	if err != nil {
		err = mapStoreError(err)
		return err
	}
	if err = s.users.DeleteUser(storeCtx, userID); err != nil {
		err = mapStoreError(err)
		return err
	}

	s.cascade.publish(ctx, doomed, s.now())
	return nil
}

// ListUsers returns all users for administrators, ordered by creation then id.
func (s *UserService) ListUsers(ctx context.Context, subject *authz.Subject) (users []User, err error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}

	if decision := s.policy.Decide(subject, authz.ListUsers, authz.Target{}); !decision.Allowed() {
		err = denial(decision)
		logFailure(ctx, s.loggerWith(ctx, "ListUsers", "subject_id", subjectID(subject)), "failed to list users", err)
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	raw, err := s.users.ListUsers(storeCtx)
	if err != nil {
		err = mapStoreError(err)
		logFailure(ctx, s.loggerWith(ctx, "ListUsers", "subject_id", subjectID(subject)), "failed to list users", err)
		return nil, err
	}

	users = make([]User, len(raw))
	copy(users, raw)
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func normalizeUserInput(input UserInput) UserInput {
	return UserInput{
		ID:          strings.TrimSpace(input.ID),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        strings.ToUpper(strings.TrimSpace(input.Role)),
	}
}
