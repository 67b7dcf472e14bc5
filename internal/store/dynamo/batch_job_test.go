package dynamo_test

import (
	"context"
	"fmt"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/dynamo"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("dynamo batch job store", func() {
	var (
		fake *fakeDynamo
		s    *dynamo.BatchJobStore
	)

	BeforeEach(func() {
		fake = newFakeDynamo()
		s = dynamo.NewBatchJobStore(fake, "statuses", "userId-lastUpdate-index")
	})

	It("writes pending rows in chunks and retries unprocessed items", func() {
		fake.unprocessedOnce = true
		items := make([]string, 0, 30)
		for i := 0; i < 30; i++ {
			items = append(items, fmt.Sprintf("%07d", i))
		}

		job, err := s.Create(context.TODO(), "job_1", items, "alice@example.com", 60*24*time.Hour)
		Expect(err).To(BeNil())
		Expect(job.Items).To(HaveLen(30))
		Expect(fake.count("statuses")).To(Equal(30))
		// two chunks plus one retry
		Expect(fake.batchCalls).To(Equal(3))

		got, err := s.Get(context.TODO(), "job_1")
		Expect(err).To(BeNil())
		Expect(got.Items).To(HaveLen(30))
		Expect(got.Owner).To(Equal("alice@example.com"))
		Expect(got.Counts()[model.BatchJobStatePending]).To(Equal(30))
		Expect(got.Items[0].ExpiresAt.Sub(got.Items[0].LastUpdate)).To(Equal(60 * 24 * time.Hour))
	})

	It("advances a single row", func() {
		_, err := s.Create(context.TODO(), "job_1", []string{"a", "b"}, "alice@example.com", time.Hour)
		Expect(err).To(BeNil())

		Expect(s.Advance(context.TODO(), "job_1", "b", model.BatchJobStateFailed)).To(Succeed())

		job, err := s.Get(context.TODO(), "job_1")
		Expect(err).To(BeNil())
		Expect(job.Items[0].State).To(Equal(model.BatchJobStatePending))
		Expect(job.Items[1].State).To(Equal(model.BatchJobStateFailed))
	})

	It("keeps a terminal row terminal", func() {
		_, err := s.Create(context.TODO(), "job_1", []string{"a"}, "alice@example.com", time.Hour)
		Expect(err).To(BeNil())
		Expect(s.Advance(context.TODO(), "job_1", "a", model.BatchJobStateCompleted)).To(Succeed())

		err = s.Advance(context.TODO(), "job_1", "a", model.BatchJobStateInProgress)
		Expect(err).To(MatchError(store.ErrTerminalState))

		job, err := s.Get(context.TODO(), "job_1")
		Expect(err).To(BeNil())
		Expect(job.Items[0].State).To(Equal(model.BatchJobStateCompleted))
	})

	It("refuses to advance a row that was never created", func() {
		_, err := s.Create(context.TODO(), "job_1", []string{"a"}, "alice@example.com", time.Hour)
		Expect(err).To(BeNil())

		err = s.Advance(context.TODO(), "job_1", "z", model.BatchJobStateCompleted)
		Expect(err).To(MatchError(store.ErrRecordNotFound))
		Expect(fake.count("statuses")).To(Equal(1))
	})

	It("returns not found for an unknown job", func() {
		_, err := s.Get(context.TODO(), "job_missing")
		Expect(err).To(MatchError(store.ErrRecordNotFound))
	})

	It("lists the owner's rows", func() {
		_, err := s.Create(context.TODO(), "job_1", []string{"a"}, "alice@example.com", time.Hour)
		Expect(err).To(BeNil())
		_, err = s.Create(context.TODO(), "job_2", []string{"b"}, "bob@example.com", time.Hour)
		Expect(err).To(BeNil())

		rows, err := s.ListActive(context.TODO(), "alice@example.com", time.Now().Add(-time.Hour))
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].JobID).To(Equal("job_1"))

		rows, err = s.ListActive(context.TODO(), "alice@example.com", time.Now().Add(time.Hour))
		Expect(err).To(BeNil())
		Expect(rows).To(BeEmpty())
	})

	It("counts rows by state", func() {
		_, err := s.Create(context.TODO(), "job_1", []string{"a", "b", "c"}, "alice@example.com", time.Hour)
		Expect(err).To(BeNil())
		Expect(s.Advance(context.TODO(), "job_1", "a", model.BatchJobStateCompleted)).To(Succeed())

		counts, err := s.CountByState(context.TODO())
		Expect(err).To(BeNil())
		Expect(counts).To(HaveKeyWithValue(model.BatchJobStatePending, int64(2)))
		Expect(counts).To(HaveKeyWithValue(model.BatchJobStateCompleted, int64(1)))
	})
})
