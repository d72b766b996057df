// Package provision creates the durable entities that back a completed
// onboarding: the owner account, the organization with its default agency,
// and the organization's subscription.
//
// Provisioners are stateless. They validate their input, enforce the
// uniqueness they own and persist through the store interfaces.
package provision

import (
	"net/mail"
	"strings"
	"time"

	"github.com/wolfeidau/rentdesk/internal/apperror"
	"golang.org/x/crypto/bcrypt"
)

// Clock returns the current time.
type Clock func() time.Time

// Option configures a provisioner.
type Option func(*options)

type options struct {
	now        Clock
	bcryptCost int
}

// WithClock overrides the time source used for timestamps.
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithBcryptCost sets the bcrypt work factor used for password hashes.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		o.bcryptCost = cost
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.MissingField(field)
	}
	return nil
}

func validateEmail(field, email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.Validation(field, "%s is not a valid email address", field)
	}
	return nil
}

func maxLength(field, value string, limit int) error {
	if len(value) > limit {
		return apperror.Validation(field, "%s must be at most %d characters", field, limit)
	}
	return nil
}
