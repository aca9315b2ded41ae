package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"shelfd.org/internal/auth"
	"shelfd.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token, if any, into a request principal. The
// filter itself never rejects: requests without credentials, or with
// credentials that fail verification, continue unauthenticated and the
// per-route role checks decide. Rejections are logged with the unverified
// subject for traceability.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.resolvePrincipal(r, token)
		if err != nil {
			obs.LogRequest(map[string]any{
				"ts":         time.Now().UTC().Format(time.RFC3339Nano),
				"level":      "warn",
				"msg":        "token_rejected",
				"request_id": RequestIDFromContext(r.Context()),
				"path":       r.URL.Path,
				"subject":    a.auth.PeekSubject(token),
				"reason":     rejectionReason(err),
			})
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolvePrincipal shields the request from panics in token handling; a
// panic downgrades to an unauthenticated request rather than a 500.
func (a *API) resolvePrincipal(r *http.Request, token string) (p auth.Principal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New("panic during authentication")
		}
	}()
	return a.auth.ResolvePrincipal(r.Context(), token)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrWrongTokenKind):
		return "wrong_kind"
	case errors.Is(err, auth.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, auth.ErrNotFound):
		return "unknown_subject"
	default:
		return "error"
	}
}

// requireRole guards a handler: 401 without a principal, 403 when the
// principal holds none of the listed roles.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="shelfd"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	if !auth.Authorize(r.Context(), roles...) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return auth.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
