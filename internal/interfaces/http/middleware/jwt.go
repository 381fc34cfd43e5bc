package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/auth"
	"github.com/invitely/backend/internal/infrastructure/logger"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWTAuth authenticates the bearer token and stores the caller as a
// trade.Actor on the gin context and on the request logger
func JWTAuth(validator TokenValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortAuth(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			abortAuth(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Invalid authorization header format")
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			log.Debug("Token rejected",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortAuth(c, http.StatusUnauthorized, "ERR_TOKEN_EXPIRED", "Token has expired")
				return
			}
			abortAuth(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", "Invalid token")
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", "Invalid token")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(ActorKey, actor)
		c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), actor.String()))
		c.Next()
	}
}

// RequireRole lets only the given roles through. It must run after JWTAuth.
func RequireRole(roles ...trade.ActorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", "Authentication required")
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		abortAuth(c, http.StatusForbidden, "ERR_FORBIDDEN", "Insufficient role for this action")
	}
}

// GetActor returns the authenticated caller
func GetActor(c *gin.Context) (trade.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return trade.Actor{}, false
	}
	actor, ok := v.(trade.Actor)
	return actor, ok
}

// GetClaims returns the validated token claims
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func abortAuth(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":       code,
			"message":    message,
			"request_id": GetRequestID(c),
		},
	})
}
