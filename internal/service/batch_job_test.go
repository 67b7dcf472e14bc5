package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func countBatchRows(db *gorm.DB) int64 {
	var count int64
	Expect(db.Raw("SELECT COUNT(*) FROM batch_job_items").Scan(&count).Error).To(BeNil())
	return count
}

var _ = Describe("batch job service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		index  *fakeSearch
		q      *fakeQueue
		srv    *service.BatchJobService
		user   = auth.User{Username: "batman", Groups: []string{"lob-home"}}
		creds  = aws.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret", SessionToken: "session"}
	)

	BeforeAll(func() {
		db, err := store.InitDB(sqliteConfig())
		Expect(err).To(BeNil())
		gormdb = db
		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		index = &fakeSearch{allowed: true, eligible: map[string]bool{"7654321": true, "2222222": true}}
		q = &fakeQueue{reject: map[string]bool{}}
		log := zap.NewNop().Sugar()
		publisher := service.NewBatchJobPublisher(q, service.AudioLocation{Bucket: "audio", Prefix: "/calls/"}, true, log)
		srv = service.NewBatchJobService(s.BatchJob(), publisher, index.factory(), service.BatchJobServiceConfig{
			Index:       "calls",
			AccessIndex: "access-rights",
			TTL:         60 * 24 * time.Hour,
		}, log)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM batch_job_items;")
	})

	Context("create", func() {
		It("tracks and queues every item", func() {
			created, err := srv.Create(context.TODO(), user, creds, []string{"7654321", "2222222"})
			Expect(err).To(BeNil())
			Expect(created.JobID).To(HavePrefix("job_"))
			Expect(created.Items).To(Equal([]string{"7654321", "2222222"}))

			job, err := s.BatchJob().Get(context.TODO(), created.JobID)
			Expect(err).To(BeNil())
			Expect(job.Owner).To(Equal("batman"))
			Expect(job.Counts()[model.BatchJobStatePending]).To(Equal(2))

			Expect(q.sent).To(HaveLen(2))
			var msg service.WorkMessage
			Expect(json.Unmarshal([]byte(q.sent[0].Body), &msg)).To(Succeed())
			Expect(msg.Records).To(HaveLen(1))
			rec := msg.Records[0]
			Expect(rec.SID).To(Equal("7654321"))
			Expect(rec.WavURL).To(Equal("s3://audio/calls/rec-7654321.wav"))
			Expect(rec.JobID).To(Equal(created.JobID))
			Expect(rec.Owner).To(Equal("batman"))
			Expect(rec.SkipIfExists).To(BeTrue())
		})

		It("rejects ids the index does not confirm and writes nothing", func() {
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321", "1234567"})

			var validationErr *service.ErrValidation
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.IDs).To(Equal([]string{"1234567"}))
			Expect(countBatchRows(gormdb)).To(BeZero())
			Expect(q.sent).To(BeEmpty())
		})

		It("rejects duplicate ids before searching", func() {
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321", "7654321"})

			var validationErr *service.ErrValidation
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(index.calls).To(BeZero())
		})

		It("requires caller credentials", func() {
			_, err := srv.Create(context.TODO(), user, aws.Credentials{}, []string{"7654321"})

			var deniedErr *service.ErrAccessDenied
			Expect(errors.As(err, &deniedErr)).To(BeTrue())
			Expect(index.calls).To(BeZero())
		})

		It("denies callers without an access rule", func() {
			index.allowed = false
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321"})

			var deniedErr *service.ErrAccessDenied
			Expect(errors.As(err, &deniedErr)).To(BeTrue())
			Expect(countBatchRows(gormdb)).To(BeZero())
		})

		It("reports a forbidden index as access denied", func() {
			index.accessErr = search.ErrAccessDenied
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321"})

			var deniedErr *service.ErrAccessDenied
			Expect(errors.As(err, &deniedErr)).To(BeTrue())
		})

		It("reports other index failures as external service errors", func() {
			index.err = &search.RequestError{StatusCode: 503, Body: "unavailable"}
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321"})

			var extErr *service.ErrExternalService
			Expect(errors.As(err, &extErr)).To(BeTrue())
			Expect(extErr.Service).To(Equal("search index"))
			Expect(countBatchRows(gormdb)).To(BeZero())
		})

		It("keeps rows and queued items on a partial publish", func() {
			q.reject["2222222"] = true

			created, err := srv.Create(context.TODO(), user, creds, []string{"7654321", "2222222"})
			var partialErr *service.ErrPartialPublish
			Expect(errors.As(err, &partialErr)).To(BeTrue())
			Expect(partialErr.Failed).To(HaveLen(1))
			Expect(partialErr.Failed[0].Key).To(Equal("2222222"))

			Expect(created).NotTo(BeNil())
			Expect(q.sent).To(HaveLen(1))
			job, err := s.BatchJob().Get(context.TODO(), created.JobID)
			Expect(err).To(BeNil())
			Expect(job.Counts()[model.BatchJobStatePending]).To(Equal(2))
		})
	})

	Context("read", func() {
		It("returns the job to its owner only", func() {
			created, err := srv.Create(context.TODO(), user, creds, []string{"7654321"})
			Expect(err).To(BeNil())

			job, err := srv.Get(context.TODO(), user, created.JobID)
			Expect(err).To(BeNil())
			Expect(job.Items).To(HaveLen(1))

			_, err = srv.Get(context.TODO(), auth.User{Username: "joker"}, created.JobID)
			var forbiddenErr *service.ErrBatchJobAccessForbidden
			Expect(errors.As(err, &forbiddenErr)).To(BeTrue())
		})

		It("reports unknown jobs", func() {
			_, err := srv.Get(context.TODO(), user, "job_unknown")
			var notFoundErr *service.ErrResourceNotFound
			Expect(errors.As(err, &notFoundErr)).To(BeTrue())
		})

		It("lists the caller's recent items", func() {
			_, err := srv.Create(context.TODO(), user, creds, []string{"7654321", "2222222"})
			Expect(err).To(BeNil())

			items, err := srv.ListActive(context.TODO(), user, time.Now().Add(-time.Hour))
			Expect(err).To(BeNil())
			Expect(items).To(HaveLen(2))

			items, err = srv.ListActive(context.TODO(), auth.User{Username: "joker"}, time.Now().Add(-time.Hour))
			Expect(err).To(BeNil())
			Expect(items).To(BeEmpty())
		})
	})
})
