package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/config"
	"github.com/timeledger/timeledger/pkg/model"
)

// CallerKey is where the authenticated user lands in the gin context.
const CallerKey = "caller"

// UserResolver maps the token subject to a local user row.
type UserResolver interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Auth authenticates the bearer token and loads the caller. With a
// configured secret the HS256 signature is verified; without one the token
// is decoded as-is, for deployments where a verifying gateway fronts the
// service.
func Auth(cfg config.AuthConfig, users UserResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			unauthorized(c, "missing authorization")
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "invalid authorization")
			return
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			unauthorized(c, "empty token")
			return
		}

		claims, err := parseToken(tokenString, cfg)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "token has no subject")
			return
		}

		user, err := users.GetByExternalID(c.Request.Context(), claims.Subject)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				unauthorized(c, "unknown user")
				return
			}
			logger.Error("failed to resolve caller", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":      "INTERNAL_ERROR",
					"message":   "failed to authenticate request",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})
			return
		}
		if !user.IsActive {
			unauthorized(c, "user is inactive")
			return
		}

		c.Set(CallerKey, user)
		c.Next()
	}
}

func parseToken(tokenString string, cfg config.AuthConfig) (*tokenClaims, error) {
	claims := &tokenClaims{}

	if cfg.JWTSecret == "" {
		_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "AUTHENTICATION_REQUIRED",
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Caller returns the authenticated user, or nil outside the auth group.
func Caller(c *gin.Context) *model.User {
	value, ok := c.Get(CallerKey)
	if !ok {
		return nil
	}
	user, _ := value.(*model.User)
	return user
}
