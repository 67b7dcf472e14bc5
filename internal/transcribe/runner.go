// Package transcribe submits jobs to AWS Transcribe and reads them back.
package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
)

const defaultMediaFormat = "wav"

// API is the subset of the Transcribe client used by the runner.
type API interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

var _ API = (*transcribe.Client)(nil)

type Settings struct {
	DataAccessRoleArn     string
	MaxSpeakerLabels      int32
	ChannelIdentification bool
}

// Params describes one submission. An empty LanguageCode asks the runner to
// identify the language.
type Params struct {
	JobName      string
	MediaURI     string
	MediaFormat  string
	LanguageCode string
	OutputBucket string
	OutputKey    string
}

// Audit is the settings record attached to the unit's metadata.
func (p Params) Audit(s Settings) map[string]any {
	audit := map[string]any{
		"job_name":               p.JobName,
		"media_format":           p.mediaFormat(),
		"language_code":          p.LanguageCode,
		"identify_language":      p.LanguageCode == "",
		"output_bucket":          p.OutputBucket,
		"output_key":             p.OutputKey,
		"channel_identification": s.ChannelIdentification,
	}
	if !s.ChannelIdentification && s.MaxSpeakerLabels > 0 {
		audit["max_speaker_labels"] = s.MaxSpeakerLabels
	}
	return audit
}

func (p Params) mediaFormat() string {
	if p.MediaFormat != "" {
		return strings.ToLower(p.MediaFormat)
	}
	return defaultMediaFormat
}

type Job struct {
	Name          string
	Status        string
	LanguageCode  string
	TranscriptURI string
	FailureReason string
}

type Runner struct {
	api      API
	settings Settings
}

func NewRunner(api API, settings Settings) *Runner {
	return &Runner{api: api, settings: settings}
}

func (r *Runner) Settings() Settings {
	return r.settings
}

// Submit starts the job and returns its handle, the job name.
func (r *Runner) Submit(ctx context.Context, p Params) (string, error) {
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(p.JobName),
		Media:                &types.Media{MediaFileUri: aws.String(p.MediaURI)},
		MediaFormat:          types.MediaFormat(p.mediaFormat()),
		OutputBucketName:     aws.String(p.OutputBucket),
		OutputKey:            aws.String(p.OutputKey),
		Settings:             &types.Settings{},
	}

	if p.LanguageCode != "" {
		in.LanguageCode = types.LanguageCode(p.LanguageCode)
	} else {
		in.IdentifyLanguage = aws.Bool(true)
		in.LanguageOptions = []types.LanguageCode{types.LanguageCodeFrCa, types.LanguageCodeEnUs, types.LanguageCodeEsUs}
	}

	// the runner refuses speaker labels together with channel identification
	if r.settings.ChannelIdentification {
		in.Settings.ChannelIdentification = aws.Bool(true)
	} else if r.settings.MaxSpeakerLabels > 0 {
		in.Settings.ShowSpeakerLabels = aws.Bool(true)
		in.Settings.MaxSpeakerLabels = aws.Int32(r.settings.MaxSpeakerLabels)
	}

	if r.settings.DataAccessRoleArn != "" {
		in.JobExecutionSettings = &types.JobExecutionSettings{
			AllowDeferredExecution: aws.Bool(true),
			DataAccessRoleArn:      aws.String(r.settings.DataAccessRoleArn),
		}
	}

	out, err := r.api.StartTranscriptionJob(ctx, in)
	if err != nil {
		return "", err
	}
	if out.TranscriptionJob != nil && out.TranscriptionJob.TranscriptionJobName != nil {
		return *out.TranscriptionJob.TranscriptionJobName, nil
	}
	return p.JobName, nil
}

func (r *Runner) Describe(ctx context.Context, jobName string) (*Job, error) {
	out, err := r.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return nil, fmt.Errorf("describing transcription job %q: %w", jobName, err)
	}
	tj := out.TranscriptionJob
	if tj == nil {
		return nil, fmt.Errorf("transcription job %q has no description", jobName)
	}

	job := &Job{
		Name:          aws.ToString(tj.TranscriptionJobName),
		Status:        string(tj.TranscriptionJobStatus),
		LanguageCode:  string(tj.LanguageCode),
		FailureReason: aws.ToString(tj.FailureReason),
	}
	if tj.Transcript != nil {
		job.TranscriptURI = aws.ToString(tj.Transcript.TranscriptFileUri)
	}
	return job, nil
}
