package service_test

import (
	"context"
	"errors"

	"github.com/callinsights/transcribe-orchestrator/internal/jobname"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const purpose = "call-transcribe"

var submitterConfig = service.SubmitterConfig{
	Purpose:        purpose,
	OutputBucket:   "out",
	OutputPrefix:   "transcripts",
	MetadataBucket: "meta",
	MetadataPrefix: "extra-metadata",
}

func countPauses(db *gorm.DB) int64 {
	var count int64
	Expect(db.Raw("SELECT COUNT(*) FROM paused_workflows").Scan(&count).Error).To(BeNil())
	return count
}

var _ = Describe("transcription service", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		runner    *fakeRunner
		artifacts *fakeArtifacts
		srv       *service.TranscriptionService
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
		runner = &fakeRunner{}
		artifacts = newFakeArtifacts()
		log := zap.NewNop().Sugar()
		submitter := service.NewIdempotentSubmitter(runner, artifacts, submitterConfig, log)
		srv = service.NewTranscriptionService(submitter, service.NewPauseRegistry(s.Pause(), purpose, log), log)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM paused_workflows;")
	})

	Context("start", func() {
		It("registers the pause before submitting and records the settings", func() {
			result, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken:  "token-a",
				InputRef:     "7654321",
				MediaURI:     "s3://audio/calls/rec-7654321.wav",
				LanguageCode: "fr-CA",
			})
			Expect(err).To(BeNil())
			Expect(result.ShortCircuited).To(BeFalse())
			Expect(jobname.MatchesPurpose(result.JobHandle, purpose)).To(BeTrue())
			Expect(result.OutputKey).To(Equal("transcripts/call-transcribe-7654321.json"))

			Expect(runner.submitted).To(HaveLen(1))
			Expect(runner.submitted[0].OutputKey).To(Equal(result.OutputKey))
			Expect(runner.submitted[0].OutputBucket).To(Equal("out"))
			Expect(countPauses(gormdb)).To(BeNumerically("==", 1))

			doc := artifacts.docs["meta/extra-metadata/call-transcribe-7654321.json"]
			Expect(doc).To(HaveKey("transcribe_settings"))
			settings := doc["transcribe_settings"].(map[string]any)
			Expect(settings["language_code"]).To(Equal("fr-CA"))
			Expect(settings["job_name"]).To(Equal(result.JobHandle))
			Expect(settings).To(HaveKey("submitted_at"))
		})

		It("short-circuits final units whose output exists", func() {
			artifacts.existing["out/transcripts/call-transcribe-7654321.json"] = true

			result, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken: "token-b",
				InputRef:    "7654321",
				MediaURI:    "s3://audio/calls/rec-7654321.wav",
				Final:       true,
			})
			Expect(err).To(BeNil())
			Expect(result.ShortCircuited).To(BeTrue())
			Expect(result.JobHandle).To(Equal("PASS"))
			Expect(runner.submissions()).To(BeZero())
			Expect(countPauses(gormdb)).To(BeZero())
		})

		It("submits exploratory units even when the output exists", func() {
			artifacts.existing["out/transcripts/call-transcribe-7654321.json"] = true

			result, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken: "token-c",
				InputRef:    "7654321",
				MediaURI:    "s3://audio/calls/rec-7654321.wav",
			})
			Expect(err).To(BeNil())
			Expect(result.ShortCircuited).To(BeFalse())
			Expect(runner.submissions()).To(Equal(1))
		})

		It("fails loudly when the existence check fails", func() {
			artifacts.existsErr = errors.New("connection reset")

			_, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken: "token-d",
				InputRef:    "7654321",
				MediaURI:    "s3://audio/calls/rec-7654321.wav",
				Final:       true,
			})
			Expect(err).NotTo(BeNil())
			var extErr *service.ErrExternalService
			Expect(errors.As(err, &extErr)).To(BeTrue())
			Expect(runner.submissions()).To(BeZero())
			Expect(countPauses(gormdb)).To(BeZero())
		})

		It("takes the pause back and returns the runner error unchanged", func() {
			runner.submitErr = errRunnerDown

			_, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken: "token-e",
				InputRef:    "7654321",
				MediaURI:    "s3://audio/calls/rec-7654321.wav",
			})
			Expect(err).To(Equal(errRunnerDown))
			Expect(countPauses(gormdb)).To(BeZero())
		})

		It("keeps the pause when only the settings audit fails", func() {
			artifacts.writeErr = errors.New("access denied")

			result, err := srv.Start(context.TODO(), service.StartRequest{
				ResumeToken: "token-f",
				InputRef:    "7654321",
				MediaURI:    "s3://audio/calls/rec-7654321.wav",
			})
			var auditErr *service.ErrSettingsAudit
			Expect(errors.As(err, &auditErr)).To(BeTrue())
			Expect(result).NotTo(BeNil())
			Expect(auditErr.JobName).To(Equal(result.JobHandle))
			Expect(countPauses(gormdb)).To(BeNumerically("==", 1))
		})

		It("refuses a request without input reference", func() {
			_, err := srv.Start(context.TODO(), service.StartRequest{ResumeToken: "token-g"})
			var validationErr *service.ErrValidation
			Expect(errors.As(err, &validationErr)).To(BeTrue())
		})
	})

	Context("submitter", func() {
		It("returns the runner handle", func() {
			runner.handle = "job-abc"
			submitter := service.NewIdempotentSubmitter(runner, artifacts, submitterConfig, zap.NewNop().Sugar())

			result, err := submitter.Submit(context.TODO(), service.SubmitRequest{InputRef: "7654321", MediaURI: "s3://audio/rec.wav"})
			Expect(err).To(BeNil())
			Expect(result.JobHandle).To(Equal("job-abc"))
		})
	})
})
