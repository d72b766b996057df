package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	httpmiddleware "github.com/wolfeidau/rentdesk/internal/http"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/onboarding"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) startOnboarding(w http.ResponseWriter, r *http.Request) {
	client := onboarding.ClientContext{
		ClientToken: strings.TrimSpace(r.Header.Get(OnboardingTokenHeader)),
		UserAgent:   r.UserAgent(),
		IPAddress:   httpmiddleware.ClientIPFromContext(r.Context()),
	}
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		userID := principal.UserID
		client.UserID = &userID
		client.ClientToken = ""
	}

	session, err := s.orchestrator.StartOrSync(r.Context(), client)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	view := newSessionView(session)
	if session.ClientToken != "" {
		view.ClientToken = session.ClientToken
		w.Header().Set(OnboardingTokenHeader, session.ClientToken)
	}

	httpmiddleware.WriteData(w, r, http.StatusOK, "onboarding session ready", view)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	session, err := s.orchestrator.GetSession(r.Context(), sessionID)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	httpmiddleware.WriteData(w, r, http.StatusOK, "onboarding session", newSessionView(session))
}

func (s *Server) submitStep(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	step := parseStep(chi.URLParam(r, "stepName"))

	payload, err := readBody(w, r)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	session, err := s.orchestrator.SubmitStep(r.Context(), sessionID, step, payload)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	httpmiddleware.WriteData(w, r, http.StatusOK, "step "+string(step)+" accepted", newSessionView(session))
}

func (s *Server) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	completion, err := s.orchestrator.CompleteOnboarding(r.Context(), sessionID)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	httpmiddleware.WriteData(w, r, http.StatusCreated, "onboarding completed", newCompletionView(completion))
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(r.Context(), auth.PermPlansRead); err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	plans, err := s.plans.List(r.Context())
	if err != nil {
		httpmiddleware.WriteError(w, r, apperror.Internal(err, "failed to list plans"))
		return
	}

	httpmiddleware.WriteDataWithMetadata(w, r, http.StatusOK, "subscription plans", plans, listMetadata{Count: len(plans)})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	status := models.SessionStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status == "" {
		status = models.SessionStatusInProgress
	}

	limit, err := limitParam(r)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	sessions, err := s.orchestrator.ListSessions(r.Context(), status, limit)
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	views := make([]*sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, newSessionView(session))
	}

	httpmiddleware.WriteDataWithMetadata(w, r, http.StatusOK, "onboarding sessions", views, listMetadata{Count: len(views), Limit: limit})
}

func (s *Server) reapSessions(w http.ResponseWriter, r *http.Request) {
	abandonAfter := s.cfg.AbandonAfter
	if raw := r.URL.Query().Get("abandonAfter"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpmiddleware.WriteError(w, r, apperror.Validation("abandonAfter", "abandonAfter must be a positive duration such as 1h"))
			return
		}
		abandonAfter = d
	}

	result, err := s.orchestrator.ReapStaleSessions(r.Context(), s.now().Add(-abandonAfter))
	if err != nil {
		httpmiddleware.WriteError(w, r, err)
		return
	}

	httpmiddleware.WriteData(w, r, http.StatusOK, "stale sessions reaped", result)
}

func sessionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "sessionId")
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation("sessionId", "sessionId %q is not a valid id", raw)
	}
	return sessionID, nil
}

// parseStep accepts step names as OWNER_INFO, owner_info or owner-info.
func parseStep(raw string) models.Step {
	return models.Step(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		return 0, apperror.Validation("limit", "limit must be between 1 and %d", maxListLimit)
	}
	return limit, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperror.Validation("", "request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, apperror.Validation("", "failed to read request body")
	}
	return body, nil
}
