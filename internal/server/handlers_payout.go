package server

import (
	"net/http"
	"strconv"

	payoutdomain "github.com/boohpay/boohpay/internal/payout/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createPayoutRequest struct {
	Provider        string         `json:"provider"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	PayeeIdentifier string         `json:"payee_identifier"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	jobID, err := s.payoutSvc.Enqueue(c.Request.Context(), payoutdomain.EnqueueRequest{
		MerchantID:      merchant.ID,
		Provider:        req.Provider,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PayeeIdentifier: req.PayeeIdentifier,
		Metadata:        req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     jobID.String(),
		"status": payoutdomain.StatusPending,
	})
}

func (s *Server) ListPayouts(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	jobs, err := s.payoutSvc.ListJobs(c.Request.Context(), merchant.ID, c.Query("status"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": jobs})
}

func (s *Server) GetPayout(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	jobID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	job, err := s.payoutSvc.Get(c.Request.Context(), merchant.ID, jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
