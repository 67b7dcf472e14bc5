package auth

import (
	"net/http"
	"strings"
)

// GroupsHeader lets unauthenticated deployments pass the caller's groups.
const GroupsHeader = "X-Groups"

type NoneAuthenticator struct{}

func NewNoneAuthenticator() (*NoneAuthenticator, error) {
	return &NoneAuthenticator{}, nil
}

func (n *NoneAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := User{
			Username: "admin",
			Email:    "admin@internal",
		}
		if groups := r.Header.Get(GroupsHeader); groups != "" {
			for _, g := range strings.Split(groups, ",") {
				if g = strings.TrimSpace(g); g != "" {
					user.Groups = append(user.Groups, g)
				}
			}
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
