package api

import (
	"net/http"
	"strings"

	"bus-booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userIDContextKey = "user_id"

// devFallbackUserID is the synthetic identity handed out when the dev
// fallback is enabled and no valid token is presented. Never enabled in
// production config.
var devFallbackUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Authenticator resolves the calling user from a bearer token
type Authenticator struct {
	secret      []byte
	devFallback bool
	logger      *zap.Logger
}

// NewAuthenticator creates a new authenticator. When devFallback is
// true, unauthenticated requests proceed as a fixed synthetic user.
func NewAuthenticator(secret string, devFallback bool) *Authenticator {
	return &Authenticator{
		secret:      []byte(secret),
		devFallback: devFallback,
		logger:      util.GetLogger(),
	}
}

// Middleware extracts and validates the bearer token, placing the user
// ID in the request context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.resolve(c.GetHeader("Authorization"))
		if err != nil {
			if a.devFallback {
				a.logger.Debug("Using dev fallback identity", zap.Error(err))
				c.Set(userIDContextKey, devFallbackUserID)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func (a *Authenticator) resolve(header string) (uuid.UUID, error) {
	if header == "" {
		return uuid.Nil, jwt.ErrTokenMalformed
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return uuid.Nil, jwt.ErrTokenMalformed
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, jwt.ErrTokenInvalidSubject
	}
	return userID, nil
}

// UserID returns the authenticated user from the gin context, or
// uuid.Nil when the request never passed the auth middleware
func UserID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return uuid.Nil
	}
	userID, ok := v.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}
