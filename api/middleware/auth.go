package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/marketplace-checkout/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-checkout/pkg/auth"
	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

// Auth requires a valid access token and copies the caller's identity into
// the request context and its log fields.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), logg, claims)))
		})
	}
}

func withIdentity(ctx context.Context, logg *logger.Logger, claims *pkgAuth.AccessTokenClaims) context.Context {
	identity := map[string]any{
		"user_id":    claims.UserID.String(),
		"actor_role": claims.Role.String(),
	}
	ctx = WithUserID(ctx, claims.UserID.String())
	ctx = WithRole(ctx, claims.Role.String())
	if claims.SellerID != nil {
		identity["seller_id"] = claims.SellerID.String()
		ctx = WithSellerID(ctx, claims.SellerID.String())
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, identity)
	}
	return ctx
}
