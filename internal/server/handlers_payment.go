package server

import (
	"encoding/json"
	"io"
	"net/http"

	paymentdomain "github.com/boohpay/boohpay/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

type createPaymentRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
	Country  string `json:"country"`
	Gateway  string `json:"gateway,omitempty"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// The raw body participates in idempotency hashing, so it is read once
	// up front.
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	var req createPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	merchantID := merchant.ID.String()
	idemKey := c.GetHeader("Idempotency-Key")

	if idemKey != "" {
		stored, err := s.idemCache.Check(ctx, idemKey, body, merchantID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if stored != nil {
			s.obsMetrics.RecordIdempotencyReplay()
			c.Data(http.StatusCreated, "application/json", stored)
			return
		}
	}

	intent, err := s.paymentSvc.Submit(ctx, paymentdomain.SubmitRequest{
		MerchantID:      merchant.ID,
		OrderID:         req.OrderID,
		Method:          req.Method,
		Country:         req.Country,
		Amount:          req.Amount,
		Currency:        req.Currency,
		GatewayOverride: req.Gateway,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response, err := json.Marshal(intent)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if idemKey != "" {
		if err := s.idemCache.Store(ctx, idemKey, body, merchantID, response); err != nil {
			s.log.Error("idempotency store failed",
				zap.String("merchant_id", merchantID),
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err),
			)
			AbortWithError(c, ErrInternal)
			return
		}
	}

	c.Data(http.StatusCreated, "application/json", response)
}

func (s *Server) GetPayment(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	intentID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	intent, err := s.paymentSvc.Get(c.Request.Context(), merchant.ID, intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) RefundPayment(c *gin.Context) {
	merchant, ok := merchantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	intentID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		MerchantID: merchant.ID,
		IntentID:   intentID,
		Amount:     req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}
