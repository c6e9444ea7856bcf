package server

import (
	"net/http"
	"strconv"

	merchantdomain "github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type webhookConfigRequest struct {
	URL    *string `json:"url"`
	Secret *string `json:"secret"`
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
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

	deliveries, err := s.webhookSvc.ListDeliveries(c.Request.Context(), merchant.ID, c.Query("status"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (s *Server) RedeliverWebhook(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	deliveryID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	delivery, err := s.webhookSvc.Redeliver(c.Request.Context(), merchant.ID, deliveryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (s *Server) GetWebhookConfig(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	cfg, err := s.merchantSvc.GetWebhookConfig(c.Request.Context(), merchant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) SetWebhookConfig(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req webhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cfg, err := s.merchantSvc.SetWebhookConfig(c.Request.Context(), merchant.ID, merchantdomain.UpdateWebhookConfigRequest{
		URL:    req.URL,
		Secret: req.Secret,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
