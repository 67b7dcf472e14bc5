package auth_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("sso authentication", func() {
	Context("rh authentication", func() {
		It("successfully validate the token", func() {
			sToken, keyFn := generateToken("batman", "batman@gothamcity.com", []string{"/distributor-42", "lob-home"})
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("batman"))
			Expect(user.Email).To(Equal("batman@gothamcity.com"))
			Expect(user.Groups).To(Equal([]string{"distributor-42", "lob-home"}))
		})

		It("fails to authenticate -- wrong signing method", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("failed validate the token -- username is missing", func() {
			sToken, keyFn := generateToken("", "user@company.com", nil)
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("failed validate the token -- email is malformed", func() {
			sToken, keyFn := generateToken("user", "some-email", nil)
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("rh auth middleware", func() {
		It("successfully authenticate", func() {
			sToken, keyFn := generateToken("batman", "batman@gothamcity.com", nil)
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			h := &handler{}
			ts := httptest.NewServer(authenticator.Authenticator(h))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", sToken))

			resp, rerr := http.DefaultClient.Do(req)
			Expect(rerr).To(BeNil())
			Expect(resp.StatusCode).To(Equal(200))
			Expect(h.user.Username).To(Equal("batman"))
		})

		It("failed to authenticate", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			ts := httptest.NewServer(authenticator.Authenticator(&handler{}))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", sToken))

			resp, rerr := http.DefaultClient.Do(req)
			Expect(rerr).To(BeNil())
			Expect(resp.StatusCode).To(Equal(401))
		})

		It("refuses requests without a token", func() {
			_, keyFn := generateToken("batman", "", nil)
			authenticator, err := auth.NewRHSSOAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			ts := httptest.NewServer(authenticator.Authenticator(&handler{}))
			defer ts.Close()

			resp, rerr := http.Get(ts.URL)
			Expect(rerr).To(BeNil())
			Expect(resp.StatusCode).To(Equal(401))
		})
	})

	Context("caller credentials", func() {
		It("stores the credentials headers in the context", func() {
			h := &handler{}
			ts := httptest.NewServer(auth.CallerCredentials(h))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add(auth.AccessKeyHeader, "AKIA")
			req.Header.Add(auth.SecretKeyHeader, "secret")
			req.Header.Add(auth.SessionTokenHeader, "session")

			_, rerr := http.DefaultClient.Do(req)
			Expect(rerr).To(BeNil())
			Expect(h.hasCreds).To(BeTrue())
			Expect(h.creds.AccessKeyID).To(Equal("AKIA"))
			Expect(h.creds.SessionToken).To(Equal("session"))
		})

		It("leaves the context untouched without headers", func() {
			h := &handler{}
			ts := httptest.NewServer(auth.CallerCredentials(h))
			defer ts.Close()

			_, rerr := http.Get(ts.URL)
			Expect(rerr).To(BeNil())
			Expect(h.hasCreds).To(BeFalse())
		})
	})

	Context("none authentication", func() {
		It("reads groups from the header", func() {
			authenticator, err := auth.NewNoneAuthenticator()
			Expect(err).To(BeNil())

			h := &handler{}
			ts := httptest.NewServer(authenticator.Authenticator(h))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add(auth.GroupsHeader, "transcribe-all-calls, lob-home")

			_, rerr := http.DefaultClient.Do(req)
			Expect(rerr).To(BeNil())
			Expect(h.user.Username).To(Equal("admin"))
			Expect(h.user.Groups).To(Equal([]string{"transcribe-all-calls", "lob-home"}))
		})
	})
})

type handler struct {
	user     auth.User
	creds    aws.Credentials
	hasCreds bool
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.user, _ = auth.UserFromContext(r.Context())
	h.creds, h.hasCreds = auth.CredentialsFromContext(r.Context())
	w.WriteHeader(200)
}

func generateToken(username, email string, groups []string) (string, func(t *jwt.Token) (any, error)) {
	claims := jwt.MapClaims{
		"preferred_username": username,
		"email":              email,
		"groups":             groups,
		"exp":                jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		"iat":                jwt.NewNumericDate(time.Now()),
		"iss":                "test",
	}

	// generate a pair of keys RSA
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}

func generateTokenWrongSigningMethod() (string, func(t *jwt.Token) (any, error)) {
	claims := jwt.MapClaims{
		"preferred_username": "batman",
		"exp":                jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}
