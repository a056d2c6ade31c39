package deviceauth

import "net/http"

// HTTPMiddleware authenticates an API request's device-session access
// token and stores the resolved identity in the request context. Unlike
// the realtime Authenticator, the HTTP API is never dialed by a
// LocalPod directly, so there is no shared-secret branch here.
func HTTPMiddleware(tokens *TokenManager, blacklist *Blacklist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer credential", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil || claims.Kind != "access" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			revoked, err := blacklist.IsRevoked(r.Context(), claims.JTI)
			if err != nil || revoked {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), HTTPIdentity{UserID: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.URL.Query().Get("token")
}
