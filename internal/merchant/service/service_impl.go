package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/boohpay/boohpay/internal/merchant/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("merchant.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidAPIKey
	}
	merchant, err := s.repo.FindByAPIKey(ctx, s.db, apiKey)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, domain.ErrInvalidAPIKey
	}
	return merchant, nil
}

func (s *Service) GetWebhookConfig(ctx context.Context, merchantID snowflake.ID) (domain.WebhookConfig, error) {
	merchant, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return domain.WebhookConfig{}, err
	}
	if merchant == nil {
		return domain.WebhookConfig{}, domain.ErrNotFound
	}
	return webhookConfig(merchant), nil
}

func (s *Service) GetWebhookTarget(ctx context.Context, merchantID snowflake.ID) (domain.WebhookTarget, error) {
	merchant, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return domain.WebhookTarget{}, err
	}
	if merchant == nil {
		return domain.WebhookTarget{}, domain.ErrNotFound
	}
	target := domain.WebhookTarget{}
	if merchant.WebhookURL != nil {
		target.URL = strings.TrimSpace(*merchant.WebhookURL)
	}
	if merchant.WebhookSecret != nil {
		target.Secret = *merchant.WebhookSecret
	}
	return target, nil
}

func (s *Service) SetWebhookConfig(ctx context.Context, merchantID snowflake.ID, req domain.UpdateWebhookConfigRequest) (domain.WebhookConfig, error) {
	merchant, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return domain.WebhookConfig{}, err
	}
	if merchant == nil {
		return domain.WebhookConfig{}, domain.ErrNotFound
	}

	newURL := merchant.WebhookURL
	if req.URL != nil {
		trimmed := strings.TrimSpace(*req.URL)
		if trimmed == "" {
			newURL = nil
		} else {
			if err := validateWebhookURL(trimmed); err != nil {
				return domain.WebhookConfig{}, err
			}
			newURL = &trimmed
		}
	}

	newSecret := merchant.WebhookSecret
	if req.Secret != nil {
		trimmed := strings.TrimSpace(*req.Secret)
		if trimmed == "" {
			newSecret = nil
		} else {
			newSecret = &trimmed
		}
	}

	if err := s.repo.UpdateWebhook(ctx, s.db, merchantID, newURL, newSecret); err != nil {
		return domain.WebhookConfig{}, err
	}

	s.log.Info("webhook config updated",
		zap.String("merchant_id", merchantID.String()),
		zap.Bool("url_set", newURL != nil),
		zap.Bool("secret_set", newSecret != nil),
	)

	merchant.WebhookURL = newURL
	merchant.WebhookSecret = newSecret
	return webhookConfig(merchant), nil
}

func webhookConfig(merchant *domain.Merchant) domain.WebhookConfig {
	cfg := domain.WebhookConfig{}
	if merchant.WebhookURL != nil {
		cfg.URL = *merchant.WebhookURL
	}
	cfg.HasSecret = merchant.WebhookSecret != nil && *merchant.WebhookSecret != ""
	return cfg
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return domain.ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return domain.ErrInvalidURL
	}
	if parsed.Host == "" {
		return domain.ErrInvalidURL
	}
	return nil
}
