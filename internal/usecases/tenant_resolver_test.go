package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa_relay/internal/entities"
)

func TestPhoneVariants(t *testing.T) {
	assert.Equal(t, []string{"15551234567", "+15551234567"}, PhoneVariants("+1 (555) 123-4567"))
	assert.Equal(t, []string{"628123", "+628123"}, PhoneVariants("628123"))
	assert.Nil(t, PhoneVariants("n/a"))
}

func TestResolveByConnectedBinding(t *testing.T) {
	biz := &entities.Business{ID: "biz-1", Name: "Bean There"}
	store := &fakeBusinessStore{bindings: map[string]*entities.Business{"+15550001111": biz}}
	r := NewTenantResolver(store, "", zerolog.Nop())

	got, err := r.Resolve(context.Background(), "15550001111")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", got.ID)
}

func TestResolveFallsBackToSingleActiveBusiness(t *testing.T) {
	store := &fakeBusinessStore{active: []entities.Business{{ID: "only"}}}
	r := NewTenantResolver(store, "15550001111", zerolog.Nop())

	got, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "only", got.ID)
}

func TestResolveFallbackRequiresExactlyOne(t *testing.T) {
	store := &fakeBusinessStore{active: []entities.Business{{ID: "a"}, {ID: "b"}}}
	r := NewTenantResolver(store, "15550001111", zerolog.Nop())

	_, err := r.Resolve(context.Background(), "15550001111")
	assert.ErrorIs(t, err, entities.ErrBusinessNotFound)
}

func TestResolveWithoutStaticPhoneHasNoFallback(t *testing.T) {
	store := &fakeBusinessStore{active: []entities.Business{{ID: "only"}}}
	r := NewTenantResolver(store, "", zerolog.Nop())

	_, err := r.Resolve(context.Background(), "15550001111")
	assert.ErrorIs(t, err, entities.ErrBusinessNotFound)
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	store := &fakeBusinessStore{findErr: errors.New("db down")}
	r := NewTenantResolver(store, "15550001111", zerolog.Nop())

	_, err := r.Resolve(context.Background(), "15550001111")
	require.Error(t, err)
	assert.NotErrorIs(t, err, entities.ErrBusinessNotFound)
}

func TestResolveDoesNotCache(t *testing.T) {
	biz := &entities.Business{ID: "biz-1"}
	store := &fakeBusinessStore{bindings: map[string]*entities.Business{"1555": biz}}
	r := NewTenantResolver(store, "", zerolog.Nop())

	_, err := r.Resolve(context.Background(), "1555")
	require.NoError(t, err)

	store.mu.Lock()
	delete(store.bindings, "1555")
	store.mu.Unlock()

	_, err = r.Resolve(context.Background(), "1555")
	assert.ErrorIs(t, err, entities.ErrBusinessNotFound)
	assert.Equal(t, 2, store.findCalls)
}
