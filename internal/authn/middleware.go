package authn

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAuth enforces an HMAC-signed JWT and places the caller identity in
// request context. The subject claim is the user id; the role claim defaults
// to patient when absent.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			cl := claims{}
			token, err := jwt.ParseWithClaims(tokenString, &cl, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || cl.Subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			role := Role(cl.Role)
			if role != RolePT {
				role = RolePatient
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: cl.Subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
