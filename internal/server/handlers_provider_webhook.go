package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

// HandleProviderWebhook ingests settlement callbacks from payment providers.
// Replayed and uninteresting events are acknowledged so the provider stops
// redelivering them.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.paymentSvc.HandleProviderEvent(c.Request.Context(), provider, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) || errors.Is(err, paymentdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
