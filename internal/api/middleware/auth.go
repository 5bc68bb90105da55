package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/pkg/logger"
	"github.com/theblitlabs/parity-stake/pkg/wallet"
)

const CallerKey = "caller"

// Auth resolves the bearer token to the calling account. Requests without a
// valid token are rejected.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthenticated"})
			return
		}

		claims, err := wallet.VerifyToken(secret, token)
		if err != nil {
			log := logger.WithRequestID(c.GetString(RequestIDKey))
			log.Debug().Err(err).Msg("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token", "code": "unauthenticated"})
			return
		}

		c.Set(CallerKey, claims.Account())
		c.Next()
	}
}

// Caller returns the account set by Auth.
func Caller(c *gin.Context) common.Address {
	if v, ok := c.Get(CallerKey); ok {
		if addr, ok := v.(common.Address); ok {
			return addr
		}
	}
	return common.Address{}
}
