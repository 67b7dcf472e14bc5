package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type userKeyType struct{}

var userKey userKeyType

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

type User struct {
	Username string
	Email    string
	// Groups drive access to call data in the search index.
	Groups []string
	Token  *jwt.Token
}
