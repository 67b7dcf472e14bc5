package v1alpha1

import (
	"fmt"
	"io"
	"net/http"

	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
)

const maxNotificationBytes = 64 << 10

// ReceiveNotification resumes the workflow waiting on the notified job. Stale
// and foreign notifications are acknowledged with their outcome.
func (h *ServiceHandler) ReceiveNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse(r, fmt.Sprintf("failed to read notification: %v", err)))
		return
	}

	n, err := service.ParseNotification(body)
	if err != nil {
		writeError(w, r, "parse notification", err)
		return
	}
	if err := h.validator.Struct(n); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse(r, err.Error()))
		return
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), n)
	if err != nil {
		writeError(w, r, "dispatch notification", err)
		return
	}

	writeJSON(w, r, http.StatusOK, api.NotificationResponse{Outcome: string(outcome)})
}
