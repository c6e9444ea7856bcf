package gateway

import (
	"strings"

	"github.com/boohpay/boohpay/internal/payment/domain"
)

type Registry struct {
	gateways map[string]domain.Gateway
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	registry := &Registry{gateways: map[string]domain.Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(gw.Name()))
		if name == "" {
			continue
		}
		registry.gateways[name] = gw
	}
	return registry
}

func (r *Registry) Exists(name string) bool {
	if r == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	_, ok := r.gateways[name]
	return ok
}

func (r *Registry) Get(name string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrGatewayNotFound
	}
	name = strings.ToLower(strings.TrimSpace(name))
	gw, ok := r.gateways[name]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return gw, nil
}
