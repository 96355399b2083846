package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
)

// IdentityService owns users: registration, credential checks, profile edits and removal.
// Every method runs on the executor it is given, so the caller decides the transaction.
type IdentityService interface {
	Register(ctx context.Context, exec repositories.SQLExecutor, input RegisterInput) (*models.User, error)
	VerifyCredentials(ctx context.Context, exec repositories.SQLExecutor, username, password string) (*models.User, error)
	ChangePassword(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, oldPassword, newPassword string) error
	UpdateProfile(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, fields models.ProfileFields) (*models.User, error)
	// SetPhoto stores key as the caller's photo and returns the key it replaced.
	SetPhoto(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, key *string) (*models.User, *string, error)
	// DeleteUser removes the target with its memberships and sessions. It returns the
	// removed user and the teams it belonged to.
	DeleteUser(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, targetID int64) (*models.User, []int64, error)
	GetUser(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.User, error)
	ListUsers(ctx context.Context, exec repositories.SQLExecutor) ([]models.User, error)
	// EnsureAdmin creates the bootstrap admin unless the username already exists.
	EnsureAdmin(ctx context.Context, exec repositories.SQLExecutor, input RegisterInput) (*models.User, bool, error)
}

type RegisterInput struct {
	DisplayName  string          `json:"display_name"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	Role         models.UserRole `json:"-"`
	MobileNumber *string         `json:"mobile_number"`
	Gender       *string         `json:"gender"`
	Class        *string         `json:"class"`
	Year         *string         `json:"year"`
}

type identityService struct {
	userRepo       repositories.UserRepository
	membershipRepo repositories.MembershipRepository
	sessionRepo    repositories.SessionRepository
	hasher         *PasswordHasher
}

func NewIdentityService(
	userRepo repositories.UserRepository,
	membershipRepo repositories.MembershipRepository,
	sessionRepo repositories.SessionRepository,
	hasher *PasswordHasher,
) IdentityService {
	return &identityService{
		userRepo:       userRepo,
		membershipRepo: membershipRepo,
		sessionRepo:    sessionRepo,
		hasher:         hasher,
	}
}

func (s *identityService) Register(ctx context.Context, exec repositories.SQLExecutor, input RegisterInput) (*models.User, error) {
	user, err := s.buildUser(input)
	if err != nil {
		return nil, err
	}

	// Уникальность проверяет БД, а не предварительный SELECT
	if err := s.userRepo.Create(ctx, exec, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserUsernameConflict):
			return nil, ErrDuplicateUsername
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrDuplicateEmail
		default:
			return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
		}
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *identityService) buildUser(input RegisterInput) (*models.User, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)

	if displayName == "" {
		return nil, validationError("display name is required")
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = models.RoleStandard
	}
	if !role.Valid() {
		return nil, validationError("unknown role %q", role)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	return &models.User{
		DisplayName:  displayName,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		MobileNumber: trimOptional(input.MobileNumber),
		Gender:       trimOptional(input.Gender),
		Class:        trimOptional(input.Class),
		Year:         trimOptional(input.Year),
	}, nil
}

func (s *identityService) VerifyCredentials(ctx context.Context, exec repositories.SQLExecutor, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, exec, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.hasher.Burn(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *identityService) ChangePassword(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetByIDForUpdate(ctx, exec, actor.UserID)
	if err != nil {
		return mapUserRepoError(err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, exec, user.ID, hash, time.Now()); err != nil {
		return mapUserRepoError(err)
	}
	return nil
}

func (s *identityService) UpdateProfile(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, fields models.ProfileFields) (*models.User, error) {
	user, err := s.userRepo.GetByIDForUpdate(ctx, exec, actor.UserID)
	if err != nil {
		return nil, mapUserRepoError(err)
	}

	if fields.DisplayName != nil {
		name := strings.TrimSpace(*fields.DisplayName)
		if name == "" {
			return nil, validationError("display name cannot be empty")
		}
		user.DisplayName = name
	}
	if fields.MobileNumber != nil {
		user.MobileNumber = trimOptional(fields.MobileNumber)
	}
	if fields.Gender != nil {
		user.Gender = trimOptional(fields.Gender)
	}
	if fields.Class != nil {
		user.Class = trimOptional(fields.Class)
	}
	if fields.Year != nil {
		user.Year = trimOptional(fields.Year)
	}

	if err := s.userRepo.UpdateProfile(ctx, exec, user); err != nil {
		return nil, mapUserRepoError(err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *identityService) SetPhoto(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, key *string) (*models.User, *string, error) {
	user, err := s.userRepo.GetByIDForUpdate(ctx, exec, actor.UserID)
	if err != nil {
		return nil, nil, mapUserRepoError(err)
	}

	previous := user.PhotoKey
	now := time.Now()
	if err := s.userRepo.UpdatePhotoKey(ctx, exec, user.ID, key, now); err != nil {
		return nil, nil, mapUserRepoError(err)
	}

	user.PhotoKey = key
	user.UpdatedAt = now.UTC().Truncate(time.Millisecond)
	user.PasswordHash = ""
	return user, previous, nil
}

func (s *identityService) DeleteUser(ctx context.Context, exec repositories.SQLExecutor, actor models.Principal, targetID int64) (*models.User, []int64, error) {
	// Сначала проверка на самоудаление, потом существование
	if targetID == actor.UserID {
		return nil, nil, ErrSelfDeletion
	}

	user, err := s.userRepo.GetByIDForUpdate(ctx, exec, targetID)
	if err != nil {
		return nil, nil, mapUserRepoError(err)
	}

	teamIDs, err := s.membershipRepo.ListTeamIDsByUser(ctx, exec, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list teams of user %d: %w", targetID, err)
	}
	if _, err := s.membershipRepo.DeleteByUser(ctx, exec, targetID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete memberships of user %d: %w", targetID, err)
	}
	if _, err := s.sessionRepo.DeleteByUser(ctx, exec, targetID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete sessions of user %d: %w", targetID, err)
	}
	if err := s.userRepo.Delete(ctx, exec, targetID); err != nil {
		return nil, nil, mapUserRepoError(err)
	}

	user.PasswordHash = ""
	return user, teamIDs, nil
}

func (s *identityService) GetUser(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, exec, id)
	if err != nil {
		return nil, mapUserRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *identityService) ListUsers(ctx context.Context, exec repositories.SQLExecutor) ([]models.User, error) {
	users, err := s.userRepo.List(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *identityService) EnsureAdmin(ctx context.Context, exec repositories.SQLExecutor, input RegisterInput) (*models.User, bool, error) {
	existing, err := s.userRepo.GetByUsername(ctx, exec, strings.TrimSpace(input.Username))
	switch {
	case err == nil:
		existing.PasswordHash = ""
		return existing, false, nil
	case !errors.Is(err, repositories.ErrUserNotFound):
		return nil, false, fmt.Errorf("failed to look up admin user: %w", err)
	}

	input.Role = models.RoleAdmin
	user, err := s.Register(ctx, exec, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func mapUserRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrUserUsernameConflict):
		return ErrDuplicateUsername
	case errors.Is(err, repositories.ErrUserEmailConflict):
		return ErrDuplicateEmail
	default:
		return fmt.Errorf("user repository error: %w", err)
	}
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return validationError("username must be between %d and %d characters", minUsernameLength, maxUsernameLength)
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return validationError("username must not contain spaces")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email address is invalid")
	}
	return nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
