package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	apperrors "github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/errors"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxRoleKey   = "userRole"
)

// Auth enforces bearer authentication. Only access tokens pass: a refresh
// token presented here fails the kind check and is named as such, since
// the kind claim already told the caller what it holds.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := tokens.Verify(token, iauth.KindAccess)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			if errors.Is(err, iauth.ErrTokenKindMismatch) {
				response.Error(c, apperrors.ErrTokenKind)
			} else {
				// Everything else is normalised to a plain 401
				response.Error(c, apperrors.ErrUnauthorized)
			}
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)

		c.Next()
	}
}
