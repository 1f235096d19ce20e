package provider

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry(
		map[domain.ComponentType][]string{
			domain.ComponentFlight: {"amadeus", "sabre"},
			domain.ComponentHotel:  {"expedia"},
		},
		NewSimulated("amadeus", 0, 0),
		NewSimulated("expedia", 0, 0),
	)

	a, err := registry.Resolve(domain.ComponentFlight, "amadeus")
	require.NoError(t, err)
	assert.Equal(t, "amadeus", a.Name())

	_, err = registry.Resolve(domain.ComponentHotel, "amadeus")
	assert.ErrorIs(t, err, ErrProviderNotAllowed)

	// allowed by config but no adapter registered
	_, err = registry.Resolve(domain.ComponentFlight, "sabre")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.True(t, registry.Allowed(domain.ComponentFlight, "sabre"))
	assert.False(t, registry.Allowed(domain.ComponentCar, "hertz"))
	assert.Equal(t, []string{"amadeus", "sabre"}, registry.Providers(domain.ComponentFlight))
}

func TestSimulated_Book(t *testing.T) {
	ctx := context.Background()

	ok := NewSimulated("amadeus", 0, 0.5, WithRand(func() float64 { return 0.9 }))
	conf, err := ok.Book(ctx, Request{ComponentType: domain.ComponentFlight})
	require.NoError(t, err)
	assert.NotEmpty(t, conf.Attributes["seat"])

	failing := NewSimulated("amadeus", 0, 0.5, WithRand(func() float64 { return 0.1 }))
	_, err = failing.Book(ctx, Request{ComponentType: domain.ComponentFlight})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestSimulated_BookRespectsContext(t *testing.T) {
	slow := NewSimulated("hertz", time.Hour, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := slow.Book(ctx, Request{ComponentType: domain.ComponentCar})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSimulatedRegistry(t *testing.T) {
	registry, err := NewSimulatedRegistry(config.ProvidersConfig{
		Allowed: map[string][]string{
			"flight": {"amadeus"},
			"hotel":  {"expedia", "amadeus"},
		},
		Simulated: config.SimulatedConfig{RatePerSecond: 100, FailProviders: []string{"expedia"}},
	})
	require.NoError(t, err)

	a, err := registry.Resolve(domain.ComponentHotel, "expedia")
	require.NoError(t, err)
	_, err = a.Book(context.Background(), Request{ComponentType: domain.ComponentHotel})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewSimulatedRegistry(config.ProvidersConfig{Allowed: map[string][]string{"boat": {"x"}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
