package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"campaign-mailer/database"
	"campaign-mailer/services"
)

// SetupMailboxRequest is the body of the mailbox setup call.
type SetupMailboxRequest struct {
	Email       string `json:"email"`
	AppPassword string `json:"appPassword"`
}

// SetupMailboxHandler validates, verifies and stores the operator's mailbox credential.
func SetupMailboxHandler(svc *services.SetupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req SetupMailboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		if err := svc.SetupMailbox(r.Context(), user.ID, req.Email, req.AppPassword); err != nil {
			serviceErrorResponse(w, "mailbox setup", err)
			return
		}
		successResponse(w, "Gmail credentials saved", nil)
	}
}

// SetupPurposeHandler records what the operator uses the mailer for.
func SetupPurposeHandler(svc *services.SetupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req struct {
			Purpose string `json:"purpose"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		if err := svc.SetPurpose(r.Context(), user.ID, req.Purpose); err != nil {
			serviceErrorResponse(w, "purpose setup", err)
			return
		}
		successResponse(w, "Purpose saved", nil)
	}
}

// SetupStatusHandler reports whether the operator has a usable mailbox configured.
func SetupStatusHandler(svc *services.SetupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		successResponse(w, "Setup status retrieved", svc.Status(user))
	}
}

// SendCampaignHandler dispatches one campaign. Once the request is valid it
// answers 200 with per-recipient results, even when every delivery failed.
func SendCampaignHandler(svc *services.CampaignService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req services.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		resp, err := svc.Send(r.Context(), user, req)
		if err != nil {
			serviceErrorResponse(w, "send campaign", err)
			return
		}
		successResponse(w, "Campaign dispatched", resp)
	}
}

// PreviewRequest renders a template against one recipient without sending.
type PreviewRequest struct {
	Template  services.Template  `json:"template"`
	Recipient services.Recipient `json:"recipient"`
	Theme     string             `json:"emailTemplate"`
}

// PreviewHandler returns the subject and HTML a recipient would receive.
func PreviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		subject, html := services.RenderMessage(req.Template, req.Recipient, services.ParseTheme(req.Theme))
		successResponse(w, "Preview rendered", map[string]string{"subject": subject, "html": html})
	}
}

// GetCampaignsHandler lists the operator's campaigns page by page.
func GetCampaignsHandler(svc *services.CampaignService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 10)
		result, err := svc.List(r.Context(), user.ID, page, limit)
		if err != nil {
			serviceErrorResponse(w, "list campaigns", err)
			return
		}
		successResponse(w, "Campaigns retrieved", result)
	}
}

// GetDashboardStatsHandler returns the all-time dashboard summary.
func GetDashboardStatsHandler(svc *services.AnalyticsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		stats, err := svc.Dashboard(r.Context(), user.ID)
		if err != nil {
			serviceErrorResponse(w, "dashboard stats", err)
			return
		}
		successResponse(w, "Dashboard stats retrieved", stats)
	}
}

// GetAnalyticsHandler returns the analytics report for the last `period` days.
func GetAnalyticsHandler(svc *services.AnalyticsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		report, err := svc.Analytics(r.Context(), user.ID, queryInt(r, "period", 0))
		if err != nil {
			serviceErrorResponse(w, "analytics", err)
			return
		}
		successResponse(w, "Analytics retrieved", report)
	}
}

// LogReader lists email log rows.
type LogReader interface {
	ListEmailLogs(ctx context.Context, userID string, day time.Time, limit int) ([]database.EmailLog, error)
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// GetLogsHandler lists the operator's send attempts, newest first,
// optionally restricted to one date. At most maxLogLimit rows are returned.
func GetLogsHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			errorResponse(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var day time.Time
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				errorResponse(w, "Invalid date format. Use YYYY-MM-DD.", http.StatusBadRequest)
				return
			}
			day = parsed
		}

		limit := min(queryInt(r, "limit", defaultLogLimit), maxLogLimit)
		entries, err := logs.ListEmailLogs(r.Context(), user.ID, day, limit)
		if err != nil {
			serviceErrorResponse(w, "list email logs", err)
			return
		}
		successResponse(w, "Email logs retrieved successfully", entries)
	}
}

// queryInt parses a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}
