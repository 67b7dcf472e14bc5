package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

type AuthKind int

const (
	authNone AuthKind = iota
	AuthKindHeader
	AuthKindSigned
)

const signingService = "es"

// Auth is resolved once when the client is built. Exactly one of Headers or
// Credentials is meaningful, selected by Kind.
type Auth struct {
	Kind        AuthKind
	Headers     map[string]string
	Credentials aws.Credentials
	Region      string
}

// HeaderAuth authenticates every request with fixed headers, typically a
// caller's bearer token.
func HeaderAuth(headers map[string]string) Auth {
	return Auth{Kind: AuthKindHeader, Headers: headers}
}

// SignedAuth signs every request with SigV4 using the caller's credentials.
func SignedAuth(creds aws.Credentials, region string) Auth {
	return Auth{Kind: AuthKindSigned, Credentials: creds, Region: region}
}

func (a Auth) validate() error {
	switch a.Kind {
	case AuthKindHeader:
		if len(a.Headers) == 0 {
			return ErrMissingCredentials
		}
	case AuthKindSigned:
		if a.Credentials.AccessKeyID == "" || a.Credentials.SecretAccessKey == "" {
			return ErrMissingCredentials
		}
		if a.Region == "" {
			return fmt.Errorf("signed search auth needs a region")
		}
	default:
		return ErrMissingCredentials
	}
	return nil
}

func (a Auth) apply(ctx context.Context, req *http.Request, body []byte) error {
	switch a.Kind {
	case AuthKindHeader:
		for k, v := range a.Headers {
			req.Header.Set(k, v)
		}
		return nil
	case AuthKindSigned:
		sum := sha256.Sum256(body)
		return v4.NewSigner().SignHTTP(ctx, a.Credentials, req, hex.EncodeToString(sum[:]), signingService, a.Region, time.Now().UTC())
	default:
		return ErrMissingCredentials
	}
}
