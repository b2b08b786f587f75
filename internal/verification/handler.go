package verification

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	httperr "github.com/tejasgit/nylo/internal/core/errors"
)

type domainRequest struct {
	Domain     string        `json:"domain"`
	CustomerID v1.CustomerID `json:"customerId"`
}

type dnsRecord struct {
	Type  string `json:"type"`
	Host  string `json:"host"`
	Value string `json:"value"`
}

type requestVerificationResponse struct {
	Success   bool                  `json:"success"`
	Domain    string                `json:"domain"`
	Status    v1.VerificationStatus `json:"status"`
	Token     string                `json:"token"`
	DNSRecord dnsRecord             `json:"dnsRecord"`
}

type verifyResponse struct {
	Success       bool                  `json:"success"`
	Domain        string                `json:"domain"`
	Status        v1.VerificationStatus `json:"status"`
	Method        v1.VerificationMethod `json:"method,omitempty"`
	VerifiedAt    *time.Time            `json:"verifiedAt,omitempty"`
	FailureReason string                `json:"failureReason,omitempty"`
}

type statusResponse struct {
	Success       bool                  `json:"success"`
	Domain        string                `json:"domain"`
	Status        v1.VerificationStatus `json:"status"`
	Method        v1.VerificationMethod `json:"method,omitempty"`
	VerifiedAt    *time.Time            `json:"verifiedAt"`
	LastCheckedAt *time.Time            `json:"lastCheckedAt"`
	FailureReason string                `json:"failureReason,omitempty"`
}

// RegisterRoutes registers the domain verification routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	domains := r.Group("/api/domains")
	domains.POST("/request-verification", s.RequestVerificationHandler)
	domains.POST("/verify", s.VerifyHandler)
	domains.GET("/status", s.StatusHandler)
}

func (s *Service) RequestVerificationHandler(c *gin.Context) {
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	challenge, err := s.RequestVerification(c.Request.Context(), req.Domain, req.CustomerID)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusOK, requestVerificationResponse{
		Success: true,
		Domain:  challenge.Record.Domain,
		Status:  challenge.Record.Status,
		Token:   challenge.Record.Token,
		DNSRecord: dnsRecord{
			Type:  "TXT",
			Host:  challenge.Host,
			Value: challenge.Value,
		},
	})
}

func (s *Service) VerifyHandler(c *gin.Context) {
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Write(c, httperr.InvalidJSON(err))
		return
	}

	record, err := s.Verify(c.Request.Context(), req.Domain, req.CustomerID)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	// A failed check is a normal outcome of the state machine, not an HTTP error.
	c.JSON(http.StatusOK, verifyResponse{
		Success:       record.Status == v1.StatusVerified,
		Domain:        record.Domain,
		Status:        record.Status,
		Method:        record.Method,
		VerifiedAt:    record.VerifiedAt,
		FailureReason: record.FailureReason,
	})
}

func (s *Service) StatusHandler(c *gin.Context) {
	customerID, err := v1.ParseCustomerID(c.Query("customerId"))
	if err != nil {
		httperr.Write(c, httperr.Validation(err.Error(), nil))
		return
	}

	record, err := s.Status(c.Request.Context(), c.Query("domain"), customerID)
	if err != nil {
		httperr.Write(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Success:       true,
		Domain:        record.Domain,
		Status:        record.Status,
		Method:        record.Method,
		VerifiedAt:    record.VerifiedAt,
		LastCheckedAt: record.LastCheckedAt,
		FailureReason: record.FailureReason,
	})
}
