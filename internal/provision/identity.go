package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// bcrypt rejects longer inputs.
const maxPasswordLength = 72

// IdentityProvisioner creates owner accounts from OWNER_INFO data.
type IdentityProvisioner struct {
	users store.UserStore
	opts  options
}

// NewIdentityProvisioner creates an identity provisioner backed by users.
func NewIdentityProvisioner(users store.UserStore, opts ...Option) *IdentityProvisioner {
	return &IdentityProvisioner{
		users: users,
		opts:  buildOptions(opts),
	}
}

// Prepare validates a submitted OWNER_INFO payload and replaces the plaintext
// password with its bcrypt hash. The payload is normalized in place.
func (p *IdentityProvisioner) Prepare(info *models.OwnerInfo) error {
	if info == nil {
		return apperror.Validation("", "owner info is required")
	}

	info.Email = store.NormalizeEmail(info.Email)
	info.FirstName = strings.TrimSpace(info.FirstName)
	info.LastName = strings.TrimSpace(info.LastName)
	info.Phone = strings.TrimSpace(info.Phone)
	info.PasswordHash = ""

	if err := validateOwnerFields(info); err != nil {
		return err
	}
	if info.Password == "" {
		return apperror.MissingField("password")
	}
	if len(info.Password) < MinPasswordLength {
		return apperror.Validation("password", "password must be at least %d characters", MinPasswordLength)
	}
	if len(info.Password) > maxPasswordLength {
		return apperror.Validation("password", "password must be at most %d characters", maxPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(info.Password), p.opts.bcryptCost)
	if err != nil {
		return apperror.Internal(err, "failed to hash password")
	}

	info.PasswordHash = string(hash)
	info.Password = ""
	return nil
}

// PrepareExisting validates OWNER_INFO for a session bound to an existing
// account. The email must be the account's; no password is taken since the
// account is reused at completion.
func (p *IdentityProvisioner) PrepareExisting(info *models.OwnerInfo, user *models.User) error {
	if info == nil {
		return apperror.Validation("", "owner info is required")
	}

	info.Email = store.NormalizeEmail(info.Email)
	info.FirstName = strings.TrimSpace(info.FirstName)
	info.LastName = strings.TrimSpace(info.LastName)
	info.Phone = strings.TrimSpace(info.Phone)
	info.Password = ""
	info.PasswordHash = ""

	if err := validateOwnerFields(info); err != nil {
		return err
	}
	if info.Email != store.NormalizeEmail(user.Email) {
		return apperror.Validation("email", "email must match the signed in account")
	}
	return nil
}

// Provision creates the owner account for a prepared OWNER_INFO payload.
//
// If an account with the same email already exists and carries the same
// password hash it was created from this payload by an earlier attempt and
// is returned as is.
func (p *IdentityProvisioner) Provision(ctx context.Context, info *models.OwnerInfo) (*models.User, error) {
	if info == nil {
		return nil, apperror.Validation("", "owner info is required")
	}
	if err := validateOwnerFields(info); err != nil {
		return nil, err
	}
	if info.PasswordHash == "" {
		return nil, apperror.MissingField("password")
	}

	email := store.NormalizeEmail(info.Email)

	existing, err := p.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.PasswordHash == info.PasswordHash {
			log.Info().Str("user_id", existing.UserID.String()).Msg("Reusing previously provisioned user")
			return existing, nil
		}
		return nil, apperror.Conflict("email", "a user with email %s already exists", email)
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, apperror.Internal(err, "failed to look up user")
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate user ID")
	}

	now := p.opts.now()
	user := &models.User{
		UserID:       userID,
		Email:        email,
		PasswordHash: info.PasswordHash,
		FirstName:    info.FirstName,
		LastName:     info.LastName,
		Phone:        info.Phone,
		Roles:        []string{models.RoleOwner},
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserEmailTaken) {
			return nil, apperror.Conflict("email", "a user with email %s already exists", email)
		}
		return nil, apperror.Internal(err, "failed to create user")
	}

	log.Info().
		Str("user_id", user.UserID.String()).
		Msg("User provisioned")

	return user, nil
}

// Get returns an existing user, used when onboarding resumes after the
// account was created.
func (p *IdentityProvisioner) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := p.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperror.NotFound("user %s not found", userID)
		}
		return nil, apperror.Internal(err, "failed to get user")
	}
	return user, nil
}

func validateOwnerFields(info *models.OwnerInfo) error {
	if err := requireField("email", info.Email); err != nil {
		return err
	}
	if err := validateEmail("email", info.Email); err != nil {
		return err
	}
	if err := requireField("firstName", info.FirstName); err != nil {
		return err
	}
	if err := requireField("lastName", info.LastName); err != nil {
		return err
	}
	if err := maxLength("firstName", info.FirstName, 100); err != nil {
		return err
	}
	return maxLength("lastName", info.LastName, 100)
}
