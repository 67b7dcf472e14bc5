package v1alpha1

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/handlers/validator"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/pkg/requestid"
)

type ServiceHandler struct {
	batchJobSrv *service.BatchJobService
	dispatcher  *service.ResumptionDispatcher
	validator   *validator.Validator
}

func NewServiceHandler(batchJobSrv *service.BatchJobService, dispatcher *service.ResumptionDispatcher) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewBatchJobValidationRules()...)
	v.Register(validator.NewNotificationValidationRules()...)

	return &ServiceHandler{
		batchJobSrv: batchJobSrv,
		dispatcher:  dispatcher,
		validator:   v,
	}
}

// Routes mounts the v1 API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batch-jobs", h.CreateBatchJob)
		r.Get("/batch-jobs", h.ListBatchJobs)
		r.Get("/batch-jobs/{id}", h.GetBatchJob)
		r.Post("/notifications", h.ReceiveNotification)
	})
}

func errorResponse(r *http.Request, message string) api.Error {
	return api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError maps service errors to their status code.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var (
		validationErr *service.ErrValidation
		deniedErr     *service.ErrAccessDenied
		forbiddenErr  *service.ErrBatchJobAccessForbidden
		notFoundErr   *service.ErrResourceNotFound
		configErr     *service.ErrConfiguration
		externalErr   *service.ErrExternalService
		partialErr    *service.ErrPartialPublish
	)

	switch {
	case errors.As(err, &validationErr):
		resp := errorResponse(r, err.Error())
		resp.InvalidIds = validationErr.IDs
		writeJSON(w, r, http.StatusBadRequest, resp)
	case errors.As(err, &deniedErr), errors.As(err, &forbiddenErr):
		writeJSON(w, r, http.StatusForbidden, errorResponse(r, err.Error()))
	case errors.As(err, &notFoundErr):
		writeJSON(w, r, http.StatusNotFound, errorResponse(r, err.Error()))
	case errors.As(err, &partialErr):
		resp := errorResponse(r, err.Error())
		for _, f := range partialErr.Failed {
			resp.FailedIds = append(resp.FailedIds, f.Key)
		}
		writeJSON(w, r, http.StatusBadGateway, resp)
	case errors.As(err, &externalErr):
		zap.S().Named("handler").Errorw(operation, "service", externalErr.Service, "error", err)
		writeJSON(w, r, http.StatusBadGateway, errorResponse(r, err.Error()))
	case errors.As(err, &configErr):
		zap.S().Named("handler").Errorw(operation, "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse(r, err.Error()))
	default:
		zap.S().Named("handler").Errorw(operation, "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse(r, fmt.Sprintf("failed to %s: %v", operation, err)))
	}
}
