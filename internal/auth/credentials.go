package auth

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Headers carrying the caller's temporary AWS credentials, forwarded as-is to
// the search index.
const (
	AccessKeyHeader    = "X-Id-Access-Key"
	SecretKeyHeader    = "X-Id-Secret-Key"
	SessionTokenHeader = "X-Id-Session-Token"
)

type credentialsKeyType struct{}

var credentialsKey credentialsKeyType

func CredentialsFromContext(ctx context.Context) (aws.Credentials, bool) {
	val := ctx.Value(credentialsKey)
	if val == nil {
		return aws.Credentials{}, false
	}
	return val.(aws.Credentials), true
}

func NewCredentialsContext(ctx context.Context, creds aws.Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// CallerCredentials copies the caller's credentials headers into the request
// context. Requests without them pass through untouched; operations that need
// credentials refuse to run later.
func CallerCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessKey := r.Header.Get(AccessKeyHeader)
		secretKey := r.Header.Get(SecretKeyHeader)
		if accessKey == "" || secretKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		creds := aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			SessionToken:    r.Header.Get(SessionTokenHeader),
			Source:          "caller",
		}
		next.ServeHTTP(w, r.WithContext(NewCredentialsContext(r.Context(), creds)))
	})
}
