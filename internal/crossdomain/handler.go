package crossdomain

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/identity"
)

type verifyTokenRequest struct {
	Token      string        `json:"token"`
	Domain     string        `json:"domain"`
	CustomerID v1.CustomerID `json:"customerId"`
}

type verifyTokenResponse struct {
	Success  bool                       `json:"success"`
	Identity *identity.VerifiedIdentity `json:"identity"`
}

type syncIdentityRequest struct {
	CustomerID  v1.CustomerID `json:"customerId"`
	WaiTag      string        `json:"waiTag"`
	CurrentSite string        `json:"currentSite"`
	Domain      string        `json:"domain"`
}

type syncIdentityResponse struct {
	Success bool     `json:"success"`
	Shared  bool     `json:"shared"`
	WaiTag  string   `json:"waiTag"`
	Sites   []string `json:"sites,omitempty"`
}

// RegisterRoutes registers the cross-domain correlation routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	tracking := r.Group("/api/tracking")
	tracking.POST("/verify-cross-domain-token", s.VerifyTokenHandler)
	tracking.POST("/sync-identity", s.SyncIdentityHandler)
}

func (s *Service) VerifyTokenHandler(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	verified, err := s.Verify(c.Request.Context(), req.Token, req.Domain, req.CustomerID)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyTokenResponse{Success: true, Identity: verified})
}

func (s *Service) SyncIdentityHandler(c *gin.Context) {
	var req syncIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	match, err := s.SyncByFingerprint(c.Request.Context(), SyncRequest{
		CustomerID: req.CustomerID,
		WaiTag:     req.WaiTag,
		Site:       req.CurrentSite,
		Domain:     req.Domain,
		UserAgent:  c.Request.UserAgent(),
		RemoteAddr: c.ClientIP(),
	})
	if err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusOK, syncIdentityResponse{
		Success: true,
		Shared:  match.Shared,
		WaiTag:  match.WaiTag,
		Sites:   match.Sites,
	})
}
