package store_test

import (
	"context"
	"time"

	st "github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("batch job store", Ordered, func() {
	var (
		s      st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(sqliteConfig())
		Expect(err).To(BeNil())
		gormDB = db
		s = st.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM batch_job_items;")
	})

	Context("create", func() {
		It("writes one pending row per item", func() {
			job, err := s.BatchJob().Create(context.TODO(), "job_1", []string{"7654321", "1234567"}, "alice@example.com", 24*time.Hour)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal("job_1"))
			Expect(job.Owner).To(Equal("alice@example.com"))
			Expect(job.Items).To(HaveLen(2))
			for _, i := range job.Items {
				Expect(i.State).To(Equal(model.BatchJobStatePending))
				Expect(i.ExpiresAt.Sub(i.LastUpdate)).To(Equal(24 * time.Hour))
			}

			count := 0
			tx := gormDB.Raw("SELECT COUNT(*) FROM batch_job_items WHERE job_id = ?", "job_1").Scan(&count)
			Expect(tx.Error).To(BeNil())
			Expect(count).To(Equal(2))
		})

		It("refuses an empty batch", func() {
			_, err := s.BatchJob().Create(context.TODO(), "job_empty", nil, "alice@example.com", time.Hour)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("advance", func() {
		BeforeEach(func() {
			_, err := s.BatchJob().Create(context.TODO(), "job_1", []string{"a", "b"}, "alice@example.com", time.Hour)
			Expect(err).To(BeNil())
		})

		It("mutates only the addressed row", func() {
			err := s.BatchJob().Advance(context.TODO(), "job_1", "a", model.BatchJobStateCompleted)
			Expect(err).To(BeNil())

			job, err := s.BatchJob().Get(context.TODO(), "job_1")
			Expect(err).To(BeNil())
			Expect(job.Items).To(HaveLen(2))
			Expect(job.Items[0].ItemID).To(Equal("a"))
			Expect(job.Items[0].State).To(Equal(model.BatchJobStateCompleted))
			Expect(job.Items[1].ItemID).To(Equal("b"))
			Expect(job.Items[1].State).To(Equal(model.BatchJobStatePending))
			Expect(job.Items[0].LastUpdate.After(job.Items[1].LastUpdate) || job.Items[0].LastUpdate.Equal(job.Items[1].LastUpdate)).To(BeTrue())
		})

		It("never adds a row", func() {
			err := s.BatchJob().Advance(context.TODO(), "job_1", "c", model.BatchJobStateCompleted)
			Expect(err).To(MatchError(st.ErrRecordNotFound))

			job, err := s.BatchJob().Get(context.TODO(), "job_1")
			Expect(err).To(BeNil())
			Expect(job.Items).To(HaveLen(2))
		})

		It("keeps a terminal row terminal", func() {
			Expect(s.BatchJob().Advance(context.TODO(), "job_1", "a", model.BatchJobStateCompleted)).To(Succeed())

			err := s.BatchJob().Advance(context.TODO(), "job_1", "a", model.BatchJobStateInProgress)
			Expect(err).To(MatchError(st.ErrTerminalState))
			err = s.BatchJob().Advance(context.TODO(), "job_1", "a", model.BatchJobStateFailed)
			Expect(err).To(MatchError(st.ErrTerminalState))

			job, err := s.BatchJob().Get(context.TODO(), "job_1")
			Expect(err).To(BeNil())
			Expect(job.Items[0].State).To(Equal(model.BatchJobStateCompleted))
		})

		It("rejects unknown states", func() {
			err := s.BatchJob().Advance(context.TODO(), "job_1", "a", model.BatchJobState("DONE"))
			Expect(err).ToNot(BeNil())
		})
	})

	Context("queries", func() {
		It("returns not found for an unknown job", func() {
			_, err := s.BatchJob().Get(context.TODO(), "job_missing")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("lists the owner's recent rows newest first", func() {
			_, err := s.BatchJob().Create(context.TODO(), "job_old", []string{"1"}, "alice@example.com", time.Hour)
			Expect(err).To(BeNil())
			_, err = s.BatchJob().Create(context.TODO(), "job_other", []string{"2"}, "bob@example.com", time.Hour)
			Expect(err).To(BeNil())

			gormDB.Exec("UPDATE batch_job_items SET last_update = ? WHERE job_id = ?", time.Now().UTC().Add(-48*time.Hour), "job_old")

			_, err = s.BatchJob().Create(context.TODO(), "job_new", []string{"3", "4"}, "alice@example.com", time.Hour)
			Expect(err).To(BeNil())
			Expect(s.BatchJob().Advance(context.TODO(), "job_new", "4", model.BatchJobStateInProgress)).To(Succeed())

			rows, err := s.BatchJob().ListActive(context.TODO(), "alice@example.com", time.Now().Add(-time.Hour))
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].ItemID).To(Equal("4"))
			Expect(rows[1].ItemID).To(Equal("3"))

			rows, err = s.BatchJob().ListActive(context.TODO(), "alice@example.com", time.Now().Add(-72*time.Hour))
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(3))
			Expect(rows[2].JobID).To(Equal("job_old"))
		})

		It("filters by state", func() {
			_, err := s.BatchJob().Create(context.TODO(), "job_1", []string{"1", "2"}, "alice@example.com", time.Hour)
			Expect(err).To(BeNil())
			Expect(s.BatchJob().Advance(context.TODO(), "job_1", "2", model.BatchJobStateFailed)).To(Succeed())

			rows, err := st.NewBatchJobStore(gormDB).List(context.TODO(), st.NewBatchJobQueryFilter().ByJobID("job_1").ByState(model.BatchJobStateFailed), nil)
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].ItemID).To(Equal("2"))
		})
	})

	Context("expiry", func() {
		It("deletes rows whatever their state once expired", func() {
			_, err := s.BatchJob().Create(context.TODO(), "job_expired", []string{"1", "2"}, "alice@example.com", time.Minute)
			Expect(err).To(BeNil())
			Expect(s.BatchJob().Advance(context.TODO(), "job_expired", "1", model.BatchJobStateCompleted)).To(Succeed())
			_, err = s.BatchJob().Create(context.TODO(), "job_live", []string{"3"}, "alice@example.com", 24*time.Hour)
			Expect(err).To(BeNil())

			deleted, err := s.BatchJob().DeleteExpired(context.TODO(), time.Now().Add(time.Hour))
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(2)))

			_, err = s.BatchJob().Get(context.TODO(), "job_expired")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
			_, err = s.BatchJob().Get(context.TODO(), "job_live")
			Expect(err).To(BeNil())
		})
	})
})
