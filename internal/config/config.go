package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	AWS      *awsConfig
	S3       *s3Config
	Search   *searchConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"orchestrator"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"ORCHESTRATOR_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"ORCHESTRATOR_METRICS_ADDRESS" default:":8080"`
	LogLevel        string `envconfig:"ORCHESTRATOR_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"ORCHESTRATOR_LOG_FORMAT" default:"console"`
	Purpose         string `envconfig:"ORCHESTRATOR_PURPOSE" default:"call-transcribe"`
	DaysToExpire    int    `envconfig:"DAYS_TO_EXPIRE" default:"60"`
	StoreBackend    string `envconfig:"ORCHESTRATOR_STORE_BACKEND" default:"gorm"`
	BatchSkipIfDone bool   `envconfig:"ORCHESTRATOR_BATCH_SKIP_IF_EXISTS" default:"true"`
	MigrationFolder string `envconfig:"ORCHESTRATOR_MIGRATIONS_FOLDER" default:""`
	Auth            Auth
}

type awsConfig struct {
	Region                string `envconfig:"AWS_REGION" default:"ca-central-1"`
	Endpoint              string `envconfig:"AWS_ENDPOINT_URL" default:""`
	AccessKeyID           string `envconfig:"ORCHESTRATOR_AWS_ACCESS_KEY_ID" default:""`
	SecretAccessKey       string `envconfig:"ORCHESTRATOR_AWS_SECRET_ACCESS_KEY" default:""`
	StatusTable           string `envconfig:"TRANSCRIBE_ON_REQUEST_STATUS_TABLE" default:""`
	StatusIndex           string `envconfig:"TRANSCRIBE_ON_REQUEST_LOCAL_INDEX" default:""`
	OwnerIndex            string `envconfig:"TRANSCRIBE_ON_REQUEST_OWNER_INDEX" default:""`
	PauseTable            string `envconfig:"TRANSCRIBE_PAUSE_TABLE" default:""`
	WorkQueueURL          string `envconfig:"SQS_QUEUE_URL" default:""`
	NotificationQueueURL  string `envconfig:"SQS_NOTIFICATION_QUEUE_URL" default:""`
	OutputBucket          string `envconfig:"TRANSCRIBE_OUTPUT_BUCKET" default:""`
	OutputPrefix          string `envconfig:"TRANSCRIBE_OUTPUT_PREFIX" default:"transcripts"`
	AudioSourceBucket     string `envconfig:"AUDIO_SOURCE_BUCKET" default:""`
	AudioSourcePrefix     string `envconfig:"AUDIO_SOURCE_PREFIX" default:""`
	MetadataBucket        string `envconfig:"AUDIO_METADATA_BUCKET" default:""`
	ExtraMetadataPrefix   string `envconfig:"EXTRA_METADATA_PREFIX" default:"extra-metadata"`
	DefaultLanguageCode   string `envconfig:"TRANSCRIBE_DEFAULT_LANGUAGE" default:"en-CA"`
	DataAccessRoleArn     string `envconfig:"TRANSCRIBE_DATA_ACCESS_ROLE_ARN" default:""`
	MaxSpeakerLabels      int32  `envconfig:"TRANSCRIBE_MAX_SPEAKERS" default:"2"`
	ChannelIdentification bool   `envconfig:"TRANSCRIBE_CHANNEL_IDENTIFICATION" default:"true"`
}

type s3Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT" default:"s3.ca-central-1.amazonaws.com"`
	AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"S3_USE_SSL" default:"true"`
}

type searchConfig struct {
	Host        string `envconfig:"ELASTICSEARCH_HOST" default:""`
	Index       string `envconfig:"ELASTICSEARCH_INDEX" default:""`
	AccessIndex string `envconfig:"ELASTICSEARCH_ACCESS_INDEX" default:"access-rights"`
	UseSSL      bool   `envconfig:"ELASTICSEARCH_USE_SSL" default:"true"`
}

type Auth struct {
	AuthenticationType string `envconfig:"ORCHESTRATOR_AUTH" default:""`
	JwkCertURL         string `envconfig:"ORCHESTRATOR_JWK_URL" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration built from defaults and the environment
// without caching it. Tests use it to tweak fields freely.
func NewDefault() *Config {
	c := new(Config)
	_ = envconfig.Process("", c)
	return c
}

// ErrMissingSettings lists the configuration keys an entrypoint needs but
// could not find.
type ErrMissingSettings struct {
	Keys []string
}

func (e *ErrMissingSettings) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// ValidateAPI checks the settings needed to accept batch requests.
func (c *Config) ValidateAPI() error {
	return require(map[string]string{
		"ELASTICSEARCH_HOST":                 c.Search.Host,
		"ELASTICSEARCH_INDEX":                c.Search.Index,
		"TRANSCRIBE_ON_REQUEST_STATUS_TABLE": c.statusTableOrDB(),
		"AUDIO_SOURCE_BUCKET":                c.AWS.AudioSourceBucket,
		"AUDIO_SOURCE_PREFIX":                c.AWS.AudioSourcePrefix,
		"SQS_QUEUE_URL":                      c.AWS.WorkQueueURL,
	}, c.Service.DaysToExpire)
}

// ValidateWorker checks the settings needed to submit jobs and process
// notifications.
func (c *Config) ValidateWorker() error {
	return require(map[string]string{
		"SQS_QUEUE_URL":            c.AWS.WorkQueueURL,
		"TRANSCRIBE_OUTPUT_BUCKET": c.AWS.OutputBucket,
		"AUDIO_METADATA_BUCKET":    c.AWS.MetadataBucket,
		"TRANSCRIBE_PAUSE_TABLE":   c.pauseTableOrDB(),
	}, c.Service.DaysToExpire)
}

func (c *Config) statusTableOrDB() string {
	if c.Service.StoreBackend != "dynamodb" {
		return "gorm"
	}
	return c.AWS.StatusTable
}

func (c *Config) pauseTableOrDB() string {
	if c.Service.StoreBackend != "dynamodb" {
		return "gorm"
	}
	return c.AWS.PauseTable
}

func require(values map[string]string, daysToExpire int) error {
	var missing []string
	for k, v := range values {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if daysToExpire <= 0 {
		missing = append(missing, "DAYS_TO_EXPIRE")
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ErrMissingSettings{Keys: missing}
}
