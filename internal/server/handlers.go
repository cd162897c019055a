package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hostpanel/tokengate/internal/gateway"
	"github.com/hostpanel/tokengate/internal/observability"
	"github.com/hostpanel/tokengate/internal/token"
)

// whoami returns the principal attached by the auth middleware, giving
// integrations a cheap way to verify a token.
func whoami(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		// Unreachable behind the auth middleware.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "no principal attached",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner_id": principal.OwnerID,
		"token_id": principal.TokenID,
	})
}

// adminAPI serves token management endpoints.
type adminAPI struct {
	manager *token.Manager
	store   token.Store
	gateway *gateway.Gateway
	logger  observability.Logger
}

// issueRequest is the body of POST /admin/tokens.
type issueRequest struct {
	OwnerID          string     `json:"owner_id" binding:"required"`
	AllowedAddresses []string   `json:"allowed_addresses"`
	RateLimit        int        `json:"rate_limit"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// policyRequest is the body of PUT /admin/tokens/:id/policy.
type policyRequest struct {
	AllowedAddresses []string   `json:"allowed_addresses"`
	RateLimit        int        `json:"rate_limit"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

func (a *adminAPI) issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record, err := a.manager.Issue(c.Request.Context(), req.OwnerID, token.Policy{
		AllowedAddresses: req.AllowedAddresses,
		RateLimit:        req.RateLimit,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		a.storeError(c, err)
		return
	}

	// The secret is returned exactly once, here.
	c.JSON(http.StatusCreated, gin.H{
		"token":  record,
		"secret": record.Secret,
	})
}

func (a *adminAPI) list(c *gin.Context) {
	records, err := a.store.List(c.Request.Context())
	if err != nil {
		a.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": records})
}

func (a *adminAPI) get(c *gin.Context) {
	record, err := a.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": record})
}

func (a *adminAPI) updatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record, err := a.manager.UpdatePolicy(c.Request.Context(), c.Param("id"), token.Policy{
		AllowedAddresses: req.AllowedAddresses,
		RateLimit:        req.RateLimit,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		a.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": record})
}

func (a *adminAPI) activate(c *gin.Context) {
	if err := a.manager.Activate(c.Request.Context(), c.Param("id")); err != nil {
		a.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *adminAPI) deactivate(c *gin.Context) {
	if err := a.manager.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		a.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *adminAPI) regenerate(c *gin.Context) {
	record, err := a.manager.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  record,
		"secret": record.Secret,
	})
}

func (a *adminAPI) delete(c *gin.Context) {
	if err := a.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *adminAPI) quota(c *gin.Context) {
	id := c.Param("id")

	// Confirm the token exists so a typo reads as 404, not a zero count.
	record, err := a.store.GetByID(c.Request.Context(), id)
	if err != nil {
		a.storeError(c, err)
		return
	}

	used, err := a.gateway.Quota(c.Request.Context(), id)
	if err != nil {
		a.logger.Error("quota lookup failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Service Unavailable",
			"message": "rate limit backend unavailable",
		})
		return
	}

	remaining := int64(record.RateLimit) - used
	if remaining < 0 {
		remaining = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"token_id":  id,
		"limit":     record.RateLimit,
		"used":      used,
		"remaining": remaining,
		"window":    a.gateway.Window().String(),
	})
}

func (a *adminAPI) resetQuota(c *gin.Context) {
	id := c.Param("id")

	if _, err := a.store.GetByID(c.Request.Context(), id); err != nil {
		a.storeError(c, err)
		return
	}

	if err := a.gateway.ResetQuota(c.Request.Context(), id); err != nil {
		a.logger.Error("quota reset failed", observability.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Service Unavailable",
			"message": "rate limit backend unavailable",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// storeError maps store errors to HTTP responses.
func (a *adminAPI) storeError(c *gin.Context, err error) {
	if errors.Is(err, token.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "no such token",
		})
		return
	}

	a.logger.Error("admin operation failed", observability.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"message": "operation failed",
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Bad Request",
		"message": err.Error(),
	})
}
