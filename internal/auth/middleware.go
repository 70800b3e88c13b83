package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"

	"github.com/faciam-dev/gcdisk/internal/logger"
	sm "github.com/faciam-dev/gcdisk/internal/server/middleware"
)

var claimsKey = sm.ClaimsKey()

// bearerToken extracts the token of an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Middleware rejects requests without a valid access token and stores the
// user id and claims in the request context.
func Middleware(api huma.API, j *JWT) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		r, w := humachi.Unwrap(ctx)
		deny := func() {
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="`+Issuer+`"`)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthenticated")
		}
		tok, ok := bearerToken(r)
		if !ok {
			deny()
			return
		}
		claims, err := j.Validate(tok)
		if err != nil {
			logger.L.Debug("reject token", "path", r.URL.Path, "err", err)
			deny()
			return
		}
		c := sm.WithUser(r.Context(), claims.Subject)
		c = context.WithValue(c, claimsKey, claims)
		next(humachi.NewContext(ctx.Operation(), r.WithContext(c), w))
	}
}

// ClaimsFromContext returns the claims stored by Middleware, if any.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok {
		return c
	}
	return nil
}
