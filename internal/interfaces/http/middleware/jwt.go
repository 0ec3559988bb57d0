package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/backend/internal/infrastructure/auth"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
)

const (
	// JWTClaimsKey is the gin context key the validated claims are stored under
	JWTClaimsKey  = "jwt_claims"
	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
)

// JWTAuth validates the bearer token on admin routes
func JWTAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authHeaderKey)
		if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := jwtService.Validate(tokenString)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token has expired"
			}
			abortUnauthorized(c, message)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponse(dto.ErrCodeUnauthorized, message))
}

// GetClaims retrieves validated claims from the gin context
func GetClaims(c *gin.Context) *auth.Claims {
	if v, exists := c.Get(JWTClaimsKey); exists {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
