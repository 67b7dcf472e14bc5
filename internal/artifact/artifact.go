// Package artifact reads and writes job outputs and metadata documents on
// S3-compatible object storage.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const noSuchKey = "NoSuchKey"

type Opts func(c *storeConfig)

type storeConfig struct {
	endpoint        string
	region          string
	accessKey       string
	secretAccessKey string
	sessionToken    string
	useSSL          bool
}

func WithEndpoint(endpoint string) Opts {
	return func(c *storeConfig) { c.endpoint = endpoint }
}

func WithRegion(region string) Opts {
	return func(c *storeConfig) { c.region = region }
}

func WithCredentials(accessKey, secretAccessKey, sessionToken string) Opts {
	return func(c *storeConfig) {
		c.accessKey = accessKey
		c.secretAccessKey = secretAccessKey
		c.sessionToken = sessionToken
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *storeConfig) { c.useSSL = useSSL }
}

type Store struct {
	client *minio.Client
}

func New(opts ...Opts) (*Store, error) {
	cfg := &storeConfig{useSSL: true}
	for _, o := range opts {
		o(cfg)
	}

	creds := credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, cfg.sessionToken)
	if cfg.accessKey == "" {
		// instance role, environment, or nothing for public test buckets
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	return &Store{client: client}, nil
}

// Exists reports whether an object is stored at bucket/key. Only a definite
// "no such key" answer yields false; any other failure is returned.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return false, nil
	}
	return false, fmt.Errorf("checking s3://%s/%s: %w", bucket, key, err)
}

// ReadJSON decodes the JSON object stored at bucket/key. A missing object
// decodes as an empty document.
func (s *Store) ReadJSON(ctx context.Context, bucket, key string) (map[string]any, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}

	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding s3://%s/%s: %w", bucket, key, err)
	}
	return doc, nil
}

func (s *Store) WriteJSON(ctx context.Context, bucket, key string, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding s3://%s/%s: %w", bucket, key, err)
	}

	_, err = s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("writing s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
