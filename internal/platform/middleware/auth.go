package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type contextKeyActorID struct{}

// ActorID returns the authenticated actor id from the context, or "".
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyActorID{}).(string)
	return id
}

// WithActorID returns a context carrying the actor id. Exposed for handler tests.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID{}, actorID)
}

// RequireAuth verifies the bearer token and puts its subject (the actor id)
// on the context. Token issuance is another service's job; this only verifies.
func RequireAuth(signingKey []byte, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				log.Warn().
					Err(err).
					Str("request_id", GetRequestID(r.Context())).
					Msg("Rejected request with invalid token")
				unauthorized(w)
				return
			}

			subject, err := parsed.Claims.GetSubject()
			if err != nil || subject == "" {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActorID(r.Context(), subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
