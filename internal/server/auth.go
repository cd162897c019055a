package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hostpanel/tokengate/internal/gateway"
	"github.com/hostpanel/tokengate/internal/observability"
)

// principalKey is the gin context key the authenticated principal is
// stored under.
const principalKey = "tokengate.principal"

// Rate limit response headers.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// Auth authenticates every request through the gateway. Rejections are
// terminal; successful requests carry the principal in the gin context.
func Auth(gw *gateway.Gateway, clientIP *ClientIPExtractor, logger observability.Logger) gin.HandlerFunc {
	if clientIP == nil {
		clientIP = NewClientIPExtractor(nil)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		credential, _ := gateway.ExtractCredential(c.Request)
		clientAddress := clientIP.Extract(c.Request)

		decision := gw.Authenticate(c.Request.Context(), credential, clientAddress)

		if decision.Limit > 0 {
			setRateLimitHeaders(c, decision)
		}

		if !decision.Authenticated {
			status, message := rejectionStatus(decision.Reason)

			if decision.Reason == gateway.ReasonRateLimited {
				c.Header(headerRetryAfter, strconv.Itoa(ceilSeconds(decision.RetryAfter)))
			}

			logger.WithContext(c.Request.Context()).Debug("request rejected",
				observability.String("reason", string(decision.Reason)),
				observability.String("client_address", clientAddress),
			)

			c.AbortWithStatusJSON(status, gin.H{
				"error":   http.StatusText(status),
				"message": message,
			})
			return
		}

		c.Set(principalKey, decision.Principal)
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal stored by Auth.
func PrincipalFrom(c *gin.Context) (*gateway.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*gateway.Principal)
	return principal, ok
}

// rejectionStatus maps a rejection reason to an HTTP status and a response
// message. Invalid and missing credentials share a status but keep
// distinct messages; invalid stays vague on purpose.
func rejectionStatus(reason gateway.Reason) (int, string) {
	switch reason {
	case gateway.ReasonMissingCredential:
		return http.StatusUnauthorized, "no API token provided"
	case gateway.ReasonInvalidCredential:
		return http.StatusUnauthorized, "invalid API token"
	case gateway.ReasonForbiddenSource:
		return http.StatusForbidden, "request source not allowed for this token"
	case gateway.ReasonRateLimited:
		return http.StatusTooManyRequests, "rate limit exceeded"
	default:
		return http.StatusInternalServerError, "authentication temporarily unavailable"
	}
}

func setRateLimitHeaders(c *gin.Context, decision gateway.Decision) {
	c.Header(headerRateLimitLimit, strconv.Itoa(decision.Limit))
	c.Header(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
	c.Header(headerRateLimitReset, strconv.FormatInt(time.Now().Add(decision.ResetAfter).Unix(), 10))
}

// ceilSeconds rounds a duration up to whole seconds, never below one.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
