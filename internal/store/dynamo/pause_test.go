package dynamo_test

import (
	"context"
	"sync"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/dynamo"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("dynamo pause store", func() {
	var (
		fake *fakeDynamo
		s    *dynamo.PauseStore
	)

	BeforeEach(func() {
		fake = newFakeDynamo()
		s = dynamo.NewPauseStore(fake, "pauses")
	})

	It("saves and takes a record once", func() {
		err := s.Save(context.TODO(), model.PausedWorkflow{
			JobName:     "calls_7654321_abcd1234",
			ResumeToken: "token-1",
			Purpose:     "calls",
			Context:     map[string]any{model.ContextBatchJobID: "job_1"},
		})
		Expect(err).To(BeNil())

		p, err := s.Take(context.TODO(), "calls_7654321_abcd1234")
		Expect(err).To(BeNil())
		Expect(p.ResumeToken).To(Equal("token-1"))
		Expect(p.Purpose).To(Equal("calls"))
		Expect(p.ContextString(model.ContextBatchJobID)).To(Equal("job_1"))
		Expect(p.CreatedAt.IsZero()).To(BeFalse())

		_, err = s.Take(context.TODO(), "calls_7654321_abcd1234")
		Expect(err).To(MatchError(store.ErrRecordNotFound))
		Expect(fake.count("pauses")).To(Equal(0))
	})

	It("does not overwrite a live record", func() {
		Expect(s.Save(context.TODO(), model.PausedWorkflow{JobName: "calls_1_a", Purpose: "calls", ResumeToken: "first"})).To(Succeed())

		err := s.Save(context.TODO(), model.PausedWorkflow{JobName: "calls_1_a", Purpose: "calls", ResumeToken: "second"})
		Expect(err).To(MatchError(store.ErrDuplicateKey))

		p, err := s.Take(context.TODO(), "calls_1_a")
		Expect(err).To(BeNil())
		Expect(p.ResumeToken).To(Equal("first"))
	})

	It("hands the record to a single concurrent taker", func() {
		Expect(s.Save(context.TODO(), model.PausedWorkflow{JobName: "calls_1_a", Purpose: "calls"})).To(Succeed())

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			found int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Take(context.TODO(), "calls_1_a"); err == nil {
					mu.Lock()
					found++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(found).To(Equal(1))
	})

	It("counts records by purpose", func() {
		Expect(s.Save(context.TODO(), model.PausedWorkflow{JobName: "calls_1_a", Purpose: "calls"})).To(Succeed())
		Expect(s.Save(context.TODO(), model.PausedWorkflow{JobName: "calls_2_b", Purpose: "calls"})).To(Succeed())
		Expect(s.Save(context.TODO(), model.PausedWorkflow{JobName: "voicemail_3_c", Purpose: "voicemail"})).To(Succeed())

		counts, err := s.CountByPurpose(context.TODO())
		Expect(err).To(BeNil())
		Expect(counts).To(Equal(map[string]int64{"calls": 2, "voicemail": 1}))
	})
})
