package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/omaldonado/snapfield-backend/api/responses"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

// AdminAuth guards operator endpoints with a static bearer token. An empty
// configured token disables the whole admin surface.
func AdminAuth(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token == "" {
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin access not configured"))
				return
			}
			supplied := bearerToken(r)
			if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				if logg != nil {
					logg.Warn(ctx, "admin.auth_rejected")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
