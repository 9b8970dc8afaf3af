package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/consultdesk/libs/auth"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type actorKey struct{}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromClaims maps an identity token to an actor. Members of adminGroup manage every
// consultant; otherwise custom:consultant_id scopes the caller.
func ActorFromClaims(c *auth.Claims, adminGroup string) model.Actor {
	a := model.Actor{Subject: c.Sub, Admin: c.HasGroup(adminGroup)}
	if id, err := strconv.ParseInt(strings.TrimSpace(c.ConsultantID), 10, 64); err == nil && id > 0 {
		a.ConsultantID = id
	}
	return a
}

func RequireBearer(v TokenVerifier, adminGroup string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			writeUnauthorized(w, "missing or invalid Authorization header")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := v.Verify(token)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), ActorFromClaims(claims, adminGroup))))
	})
}
