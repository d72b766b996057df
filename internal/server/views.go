package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/onboarding"
)

// ownerInfoView is OWNER_INFO as returned to clients, without credentials.
type ownerInfoView struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

type sessionView struct {
	SessionID             uuid.UUID                `json:"sessionId"`
	Status                models.SessionStatus     `json:"status"`
	CurrentStep           models.Step              `json:"currentStep"`
	NextStep              models.Step              `json:"nextStep,omitempty"`
	ClientToken           string                   `json:"clientToken,omitempty"`
	UserID                *uuid.UUID               `json:"userId,omitempty"`
	OwnerInfo             *ownerInfoView           `json:"ownerInfoData,omitempty"`
	OrganizationInfo      *models.OrganizationInfo `json:"organizationInfoData,omitempty"`
	PlanSelection         *models.PlanSelection    `json:"planSelectionData,omitempty"`
	CreatedOrganizationID *uuid.UUID               `json:"createdOrganizationId,omitempty"`
	CreatedSubscriptionID *uuid.UUID               `json:"createdSubscriptionId,omitempty"`
	CreatedAt             time.Time                `json:"createdAt"`
	UpdatedAt             time.Time                `json:"updatedAt"`
	CompletedAt           *time.Time               `json:"completedAt,omitempty"`
	ExpiresAt             time.Time                `json:"expiresAt"`
}

func newSessionView(session *models.OnboardingSession) *sessionView {
	view := &sessionView{
		SessionID:             session.SessionID,
		Status:                session.Status,
		CurrentStep:           session.CurrentStep,
		UserID:                session.UserID,
		OrganizationInfo:      session.OrganizationInfo,
		PlanSelection:         session.PlanSelection,
		CreatedOrganizationID: session.CreatedOrganizationID,
		CreatedSubscriptionID: session.CreatedSubscriptionID,
		CreatedAt:             session.CreatedAt,
		UpdatedAt:             session.UpdatedAt,
		CompletedAt:           session.CompletedAt,
		ExpiresAt:             session.ExpiresAt,
	}

	if session.Status == models.SessionStatusInProgress {
		if next, ok := session.CurrentStep.Next(); ok {
			view.NextStep = next
		}
	}

	if info := session.OwnerInfo; info != nil {
		view.OwnerInfo = &ownerInfoView{
			Email:     info.Email,
			FirstName: info.FirstName,
			LastName:  info.LastName,
			Phone:     info.Phone,
		}
	}

	return view
}

type completionView struct {
	Session              *sessionView                     `json:"session"`
	User                 *models.User                     `json:"user"`
	Organization         *models.Organization             `json:"organization"`
	Agency               *models.Agency                   `json:"agency"`
	Subscription         *models.OrganizationSubscription `json:"subscription"`
	Plan                 *models.SubscriptionPlan         `json:"plan"`
	AccessToken          string                           `json:"accessToken,omitempty"`
	AccessTokenExpiresAt *time.Time                       `json:"accessTokenExpiresAt,omitempty"`
}

func newCompletionView(c *onboarding.Completion) *completionView {
	view := &completionView{
		Session:      newSessionView(c.Session),
		User:         c.User,
		Organization: c.Organization,
		Agency:       c.Agency,
		Subscription: c.Subscription,
		Plan:         c.Plan,
		AccessToken:  c.AccessToken,
	}
	if c.AccessToken != "" {
		expiresAt := c.AccessTokenExpiresAt
		view.AccessTokenExpiresAt = &expiresAt
	}
	return view
}

type listMetadata struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}
