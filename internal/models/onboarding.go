package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of an onboarding session.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusExpired    SessionStatus = "EXPIRED"
	SessionStatusAbandoned  SessionStatus = "ABANDONED"
)

// IsTerminal returns true for statuses a session can never leave.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired || s == SessionStatusAbandoned
}

// Valid returns true if s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusInProgress || s.IsTerminal()
}

// Step identifies the last validated stage of an onboarding session.
type Step string

const (
	// StepStarted is held by a fresh session before any step has been accepted.
	StepStarted          Step = "STARTED"
	StepOwnerInfo        Step = "OWNER_INFO"
	StepOrganizationInfo Step = "ORGANIZATION_INFO"
	StepPlanSelection    Step = "PLAN_SELECTION"
	StepCompleted        Step = "COMPLETED"
)

// stepOrder is the fixed onboarding sequence.
var stepOrder = []Step{
	StepStarted,
	StepOwnerInfo,
	StepOrganizationInfo,
	StepPlanSelection,
	StepCompleted,
}

// SubmittableSteps are the steps a client sends a payload for, in order.
var SubmittableSteps = []Step{StepOwnerInfo, StepOrganizationInfo, StepPlanSelection}

// Index returns the position of s in the onboarding sequence, or -1 if unknown.
func (s Step) Index() int {
	return slices.Index(stepOrder, s)
}

// Valid returns true if s is part of the onboarding sequence.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// Submittable returns true if a client may submit a payload for s.
func (s Step) Submittable() bool {
	return slices.Contains(SubmittableSteps, s)
}

// Next returns the step that follows s. ok is false for the final step and unknown steps.
func (s Step) Next() (next Step, ok bool) {
	i := s.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return "", false
	}
	return stepOrder[i+1], true
}

// IsSuccessor returns true if candidate immediately follows s.
func (s Step) IsSuccessor(candidate Step) bool {
	next, ok := s.Next()
	return ok && next == candidate
}

// OwnerInfo is the OWNER_INFO payload. Password is only ever present on the
// inbound request; it is replaced by PasswordHash before the session is stored.
type OwnerInfo struct {
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone,omitempty"`
}

// OrganizationInfo is the ORGANIZATION_INFO payload.
type OrganizationInfo struct {
	Name              string `json:"name"`
	LegalName         string `json:"legalName,omitempty"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Address           string `json:"address,omitempty"`
	City              string `json:"city,omitempty"`
	Country           string `json:"country,omitempty"`
	TaxID             string `json:"taxId,omitempty"`
	DefaultAgencyName string `json:"defaultAgencyName,omitempty"`
}

// PlanSelection is the PLAN_SELECTION payload.
type PlanSelection struct {
	Plan         string       `json:"plan,omitempty"`
	BillingCycle BillingCycle `json:"billingCycle,omitempty"`
}

// OnboardingSession is the accumulated state of a single onboarding attempt.
// Sessions are never deleted, only moved to a terminal status.
type OnboardingSession struct {
	SessionID uuid.UUID `json:"sessionId"` // UUIDv7

	// Exactly one of these identifies the client when looking up an
	// in-progress session. UserID is also set once the owner account exists.
	UserID      *uuid.UUID `json:"userId,omitempty"`
	ClientToken string     `json:"clientToken,omitempty"`

	Status      SessionStatus `json:"status"`
	CurrentStep Step          `json:"currentStep"`

	OwnerInfo        *OwnerInfo        `json:"ownerInfoData,omitempty"`
	OrganizationInfo *OrganizationInfo `json:"organizationInfoData,omitempty"`
	PlanSelection    *PlanSelection    `json:"planSelectionData,omitempty"`

	// Provisioning progress, recorded as each completion step succeeds.
	CreatedOrganizationID *uuid.UUID `json:"createdOrganizationId,omitempty"`
	CreatedSubscriptionID *uuid.UUID `json:"createdSubscriptionId,omitempty"`

	// Version increments on every stored update and guards conditional writes.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`

	// Optional audit metadata captured when the session is created
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// IsExpired reports whether the session has passed its expiry at the given time.
func IsExpired(s *OnboardingSession, now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HasStepData returns true if the payload slot for step has been filled.
func (s *OnboardingSession) HasStepData(step Step) bool {
	switch step {
	case StepOwnerInfo:
		return s.OwnerInfo != nil
	case StepOrganizationInfo:
		return s.OrganizationInfo != nil
	case StepPlanSelection:
		return s.PlanSelection != nil
	default:
		return false
	}
}

// Clone returns a deep copy of the session.
func (s *OnboardingSession) Clone() *OnboardingSession {
	if s == nil {
		return nil
	}
	clone := *s
	if s.UserID != nil {
		id := *s.UserID
		clone.UserID = &id
	}
	if s.OwnerInfo != nil {
		v := *s.OwnerInfo
		clone.OwnerInfo = &v
	}
	if s.OrganizationInfo != nil {
		v := *s.OrganizationInfo
		clone.OrganizationInfo = &v
	}
	if s.PlanSelection != nil {
		v := *s.PlanSelection
		clone.PlanSelection = &v
	}
	if s.CreatedOrganizationID != nil {
		id := *s.CreatedOrganizationID
		clone.CreatedOrganizationID = &id
	}
	if s.CreatedSubscriptionID != nil {
		id := *s.CreatedSubscriptionID
		clone.CreatedSubscriptionID = &id
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}
