package usecases

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"wa_relay/internal/entities"
	"wa_relay/internal/interfaces"
)

var nonDigits = regexp.MustCompile(`\D+`)

// PhoneVariants returns the stored forms a phone number may take: bare digits
// and the same digits with a leading "+".
func PhoneVariants(phone string) []string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return nil
	}
	return []string{digits, "+" + digits}
}

// TenantResolver maps the connected WhatsApp number to the business that
// answers through it. It does not cache between calls.
type TenantResolver struct {
	store       interfaces.BusinessStore
	staticPhone string
	log         zerolog.Logger
}

// NewTenantResolver builds a resolver. staticPhone is the deployment's
// configured number; when set, a single active business is used as fallback.
func NewTenantResolver(store interfaces.BusinessStore, staticPhone string, log zerolog.Logger) *TenantResolver {
	return &TenantResolver{
		store:       store,
		staticPhone: staticPhone,
		log:         log.With().Str("component", "tenant").Logger(),
	}
}

// Resolve returns entities.ErrBusinessNotFound when no business applies.
func (r *TenantResolver) Resolve(ctx context.Context, channelPhone string) (*entities.Business, error) {
	if channelPhone == "" {
		channelPhone = r.staticPhone
	}

	if phones := PhoneVariants(channelPhone); len(phones) > 0 {
		b, err := r.store.FindConnectedBusiness(ctx, phones)
		switch {
		case err == nil:
			return b, nil
		case !errors.Is(err, entities.ErrNotFound):
			return nil, fmt.Errorf("resolve business for %s: %w", channelPhone, err)
		}
	}

	if r.staticPhone == "" {
		return nil, entities.ErrBusinessNotFound
	}

	active, err := r.store.ListActiveBusinesses(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("list fallback businesses: %w", err)
	}
	if len(active) != 1 {
		r.log.Warn().Int("active", len(active)).Msg("no binding and fallback is ambiguous")
		return nil, entities.ErrBusinessNotFound
	}
	r.log.Debug().Str("business_id", active[0].ID).Msg("using single active business")
	return &active[0], nil
}
