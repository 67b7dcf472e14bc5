package v1alpha1

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/callinsights/transcribe-orchestrator/internal/handlers/v1alpha1/mappers"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
)

const defaultListWindow = 24 * time.Hour

func (h *ServiceHandler) CreateBatchJob(w http.ResponseWriter, r *http.Request) {
	user, found := auth.UserFromContext(r.Context())
	if !found {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse(r, "unauthenticated"))
		return
	}

	var req api.CreateBatchJobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse(r, fmt.Sprintf("failed to decode request: %v", err)))
		return
	}
	req.CallIds = mappers.CallIDsFromApi(req)
	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse(r, err.Error()))
		return
	}

	creds, _ := auth.CredentialsFromContext(r.Context())
	created, err := h.batchJobSrv.Create(r.Context(), user, creds, req.CallIds)
	if err != nil {
		var partialErr *service.ErrPartialPublish
		if created != nil && errors.As(err, &partialErr) {
			resp := errorResponse(r, err.Error())
			resp.JobId = &created.JobID
			for _, f := range partialErr.Failed {
				resp.FailedIds = append(resp.FailedIds, f.Key)
			}
			writeJSON(w, r, http.StatusBadGateway, resp)
			return
		}
		writeError(w, r, "create batch job", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, mappers.CreatedBatchJobToApi(created.JobID, created.Items))
}

func (h *ServiceHandler) GetBatchJob(w http.ResponseWriter, r *http.Request) {
	user, found := auth.UserFromContext(r.Context())
	if !found {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse(r, "unauthenticated"))
		return
	}

	job, err := h.batchJobSrv.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get batch job", err)
		return
	}

	writeJSON(w, r, http.StatusOK, mappers.BatchJobToApi(job))
}

// ListBatchJobs returns the caller's items updated since the "since" query
// parameter (RFC 3339), newest first. It defaults to the last day.
func (h *ServiceHandler) ListBatchJobs(w http.ResponseWriter, r *http.Request) {
	user, found := auth.UserFromContext(r.Context())
	if !found {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse(r, "unauthenticated"))
		return
	}

	since := time.Now().Add(-defaultListWindow)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, errorResponse(r, fmt.Sprintf("invalid since %q: %v", s, err)))
			return
		}
		since = t
	}

	items, err := h.batchJobSrv.ListActive(r.Context(), user, since)
	if err != nil {
		writeError(w, r, "list batch jobs", err)
		return
	}

	writeJSON(w, r, http.StatusOK, mappers.BatchJobItemListToApi(items))
}
