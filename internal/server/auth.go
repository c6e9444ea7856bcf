package server

import (
	"strings"

	merchantdomain "github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/gin-gonic/gin"
)

const merchantContextKey = "boohpay.merchant"

// AuthRequired resolves the calling merchant from the Bearer API key and
// stores it on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		apiKey, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		merchant, err := s.merchantSvc.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(merchantContextKey, merchant)
		c.Next()
	}
}

func merchantFromContext(c *gin.Context) (*merchantdomain.Merchant, bool) {
	value, ok := c.Get(merchantContextKey)
	if !ok {
		return nil, false
	}
	merchant, ok := value.(*merchantdomain.Merchant)
	return merchant, ok && merchant != nil
}
