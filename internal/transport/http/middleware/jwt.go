package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medichat/internal/pkg/jwtutil"
	"medichat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"

	// Stream consumers that cannot set headers pass the token here instead.
	tokenQueryParam = "access_token"
)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errMsg := bearerToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, errMsg)
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (token, errMsg string) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		if qp := strings.TrimSpace(c.Query(tokenQueryParam)); qp != "" {
			return qp, ""
		}
		return "", "missing authorization"
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", "invalid authorization scheme"
	}
	token = strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}
