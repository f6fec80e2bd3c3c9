package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
)

// SessionValidator is satisfied by *authflow.Engine.
type SessionValidator interface {
	ValidateSession(ctx context.Context, accessToken string) (*authflow.Principal, error)
}

type principalContextKey struct{}

func PrincipalFromContext(ctx context.Context) (*authflow.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authflow.Principal)
	return p, ok
}

// RequireSession rejects the request with 401 unless its bearer token names
// a live session.
func RequireSession(v SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := v.ValidateSession(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if authflow.KindOf(err) == authflow.KindInternalFailure {
					status = http.StatusInternalServerError
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo copies the remote address and User-Agent into the request
// context. Forwarded headers are not trusted; put a proxy-aware handler in
// front if the service sits behind one.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authflow.WithClientIP(r.Context(), ip)
		ctx = authflow.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
