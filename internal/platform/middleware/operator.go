package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"trialstore/internal/platform/metrics"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/httputil"
	"trialstore/pkg/requestcontext"
)

// OperatorValidator defines the interface for validating operator tokens.
type OperatorValidator interface {
	ValidateToken(tokenString string) (*OperatorClaims, error)
}

// OperatorClaims represents the claims we expect from the validator.
type OperatorClaims struct {
	Subject string
	Role    string
	JTI     string
}

// RequireOperator admits requests carrying a valid bearer token with role. A
// nil validator admits everything, for deployments without a signing key.
// The token subject is recorded as the request operator.
func RequireOperator(validator OperatorValidator, role string, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			reject := func(err error, reason string) {
				if m != nil {
					m.IncUnauthorized()
				}
				logger.WarnContext(ctx, "operator access denied",
					"reason", reason,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				reject(dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"), "missing token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject(dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"), "invalid token")
				return
			}
			if claims.Role != role {
				reject(dErrors.New(dErrors.CodeForbidden, "operator role required"), "wrong role")
				return
			}

			ctx = requestcontext.WithOperator(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
