package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/callinsights/transcribe-orchestrator/internal/config"
	handlers "github.com/callinsights/transcribe-orchestrator/internal/handlers/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/jobname"
	"github.com/callinsights/transcribe-orchestrator/internal/queue"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const purpose = "call-transcribe"

type stubSearch struct {
	eligible map[string]bool
}

func (s *stubSearch) ValidateUserAccess(context.Context, string, []string) (bool, error) {
	return true, nil
}

func (s *stubSearch) InvalidIDs(_ context.Context, _ string, ids []string, _ map[string]any) ([]string, error) {
	var invalid []string
	for _, id := range ids {
		if !s.eligible[id] {
			invalid = append(invalid, id)
		}
	}
	return invalid, nil
}

func (s *stubSearch) CallMetadata(_ context.Context, _ string, ids []string) ([]search.CallMetadata, error) {
	calls := make([]search.CallMetadata, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, search.CallMetadata{SID: id, FilenamePrefix: id})
	}
	return calls, nil
}

type stubQueue struct {
	reject string
}

func (q *stubQueue) Send(_ context.Context, messages []queue.Message) []queue.Failure {
	var failures []queue.Failure
	for _, m := range messages {
		if m.Key == q.reject {
			failures = append(failures, queue.Failure{Key: m.Key, Reason: "throttled"})
		}
	}
	return failures
}

type stubRunner struct{}

func (stubRunner) Submit(_ context.Context, p transcribe.Params) (string, error) {
	return p.JobName, nil
}

func (stubRunner) Describe(_ context.Context, name string) (*transcribe.Job, error) {
	return &transcribe.Job{Name: name, LanguageCode: "en-CA"}, nil
}

func (stubRunner) Settings() transcribe.Settings {
	return transcribe.Settings{}
}

type stubSignaler struct {
	succeeded int
}

func (s *stubSignaler) Succeed(context.Context, string, map[string]any) error {
	s.succeeded++
	return nil
}

func (s *stubSignaler) Fail(context.Context, string, string) error {
	return nil
}

var _ = Describe("batch job handler", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		q        *stubQueue
		signaler *stubSignaler
		registry *service.PauseRegistry
		router   chi.Router
		user     = auth.User{Username: "batman", Groups: []string{"transcribe-all-calls"}}
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = ":memory:"
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db
		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		log := zap.NewNop().Sugar()
		q = &stubQueue{}
		signaler = &stubSignaler{}
		index := &stubSearch{eligible: map[string]bool{"7654321": true, "2222222": true}}
		factory := func(aws.Credentials) (service.SearchIndex, error) { return index, nil }

		publisher := service.NewBatchJobPublisher(q, service.AudioLocation{Bucket: "audio", Prefix: "calls"}, true, log)
		batchSrv := service.NewBatchJobService(s.BatchJob(), publisher, factory, service.BatchJobServiceConfig{Index: "calls", AccessIndex: "access-rights", TTL: time.Hour}, log)
		registry = service.NewPauseRegistry(s.Pause(), purpose, log)
		dispatcher := service.NewResumptionDispatcher(registry, stubRunner{}, signaler, s.BatchJob(), log)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := auth.NewUserContext(r.Context(), user)
				if r.Header.Get("X-Anonymous") != "" {
					ctx = r.Context()
				}
				ctx = auth.NewCredentialsContext(ctx, aws.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		handlers.NewServiceHandler(batchSrv, dispatcher).Routes(router)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM batch_job_items;")
		gormdb.Exec("DELETE FROM paused_workflows;")
	})

	do := func(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Context("create", func() {
		It("returns 201 with the job id", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321", "2222222"}})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var resp api.CreateBatchJobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.JobId).To(HavePrefix("job_"))
			Expect(resp.CallIds).To(Equal([]string{"7654321", "2222222"}))
			Expect(resp.Status).To(Equal(api.BatchJobStatusPending))
		})

		It("returns 400 with the invalid ids", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321", "1234567"}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			var resp api.Error
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.InvalidIds).To(Equal([]string{"1234567"}))
		})

		It("returns 400 for an empty request", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 502 with the failed ids on a partial publish", func() {
			q.reject = "2222222"
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321", "2222222"}})
			Expect(rec.Code).To(Equal(http.StatusBadGateway))

			var resp api.Error
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.FailedIds).To(Equal([]string{"2222222"}))
			Expect(resp.JobId).NotTo(BeNil())
		})

		It("returns 401 without a user", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321"}}, "X-Anonymous", "1")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("read", func() {
		It("returns the job with its counts", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321"}})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var created api.CreateBatchJobResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())

			rec = do(http.MethodGet, "/api/v1/batch-jobs/"+created.JobId, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var job api.BatchJob
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(Succeed())
			Expect(job.Owner).To(Equal("batman"))
			Expect(job.Done).To(BeFalse())
			Expect(job.Counts[api.BatchJobStatusPending]).To(Equal(1))
			Expect(job.Items).To(HaveLen(1))
		})

		It("returns 404 for unknown jobs", func() {
			rec := do(http.MethodGet, "/api/v1/batch-jobs/job_unknown", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("lists recent items", func() {
			rec := do(http.MethodPost, "/api/v1/batch-jobs", api.CreateBatchJobRequest{CallIds: []string{"7654321", "2222222"}})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
			rec = do(http.MethodGet, "/api/v1/batch-jobs?since="+since, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var items api.BatchJobItemList
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			Expect(items).To(HaveLen(2))
		})

		It("rejects a malformed since", func() {
			rec := do(http.MethodGet, "/api/v1/batch-jobs?since=yesterday", nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("notifications", func() {
		It("resumes once and acknowledges the duplicate", func() {
			name := jobname.New(purpose, "7654321")
			Expect(registry.Save(context.TODO(), name, "token-a", nil)).To(Succeed())

			event := map[string]any{
				"detail-type": "Transcribe Job State Change",
				"detail":      map[string]any{"TranscriptionJobName": name, "TranscriptionJobStatus": "COMPLETED"},
			}
			rec := do(http.MethodPost, "/api/v1/notifications", event)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp api.NotificationResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome).To(Equal(string(service.OutcomeResumedSuccess)))

			rec = do(http.MethodPost, "/api/v1/notifications", event)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome).To(Equal(string(service.OutcomeStale)))
			Expect(signaler.succeeded).To(Equal(1))
		})

		It("rejects notifications without status", func() {
			rec := do(http.MethodPost, "/api/v1/notifications", map[string]any{"job_name": "call-transcribe_1_abcd1234"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
