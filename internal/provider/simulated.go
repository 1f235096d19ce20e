package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"golang.org/x/time/rate"
)

var ErrUnavailable = fmt.Errorf("%w: option unavailable", domain.ErrProvider)

// Simulated stands in for a real provider integration. It waits for its
// rate limiter, sleeps for the configured latency and fails with the
// configured probability.
type Simulated struct {
	name        string
	latency     time.Duration
	failureRate float64
	limiter     *rate.Limiter
	rand        func() float64
}

type SimulatedOption func(*Simulated)

func WithRand(f func() float64) SimulatedOption {
	return func(s *Simulated) {
		s.rand = f
	}
}

func WithLimiter(l *rate.Limiter) SimulatedOption {
	return func(s *Simulated) {
		s.limiter = l
	}
}

func NewSimulated(name string, latency time.Duration, failureRate float64, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		name:        name,
		latency:     latency,
		failureRate: failureRate,
		rand:        rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Name() string { return s.name }

func (s *Simulated) Book(ctx context.Context, req Request) (*Confirmation, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if s.rand() < s.failureRate {
		return nil, ErrUnavailable
	}

	n := int(s.rand() * 1000)
	attrs := map[string]string{}
	switch req.ComponentType {
	case domain.ComponentFlight:
		attrs["seat"] = fmt.Sprintf("%d%c", 1+n%40, 'A'+rune(n%6))
	case domain.ComponentHotel:
		attrs["room_number"] = strconv.Itoa(100 + n%900)
	case domain.ComponentTicket:
		attrs["section"] = strconv.Itoa(100 + n%30)
		attrs["row"] = string('A' + rune(n%26))
		attrs["seat"] = strconv.Itoa(1 + n%30)
	case domain.ComponentCar, domain.ComponentTransportation:
	}
	return &Confirmation{Attributes: attrs}, nil
}

// NewSimulatedRegistry builds a registry with one simulated adapter per
// configured provider name.
func NewSimulatedRegistry(cfg config.ProvidersConfig) (*Registry, error) {
	allowed, err := cfg.AllowedByType()
	if err != nil {
		return nil, err
	}

	failing := make(map[string]bool, len(cfg.Simulated.FailProviders))
	for _, name := range cfg.Simulated.FailProviders {
		failing[name] = true
	}

	seen := map[string]bool{}
	var adapters []Adapter
	for _, names := range allowed {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true

			failureRate := cfg.Simulated.FailureRate
			if failing[name] {
				failureRate = 1
			}
			var opts []SimulatedOption
			if cfg.Simulated.RatePerSecond > 0 {
				burst := cfg.Simulated.Burst
				if burst <= 0 {
					burst = 1
				}
				opts = append(opts, WithLimiter(rate.NewLimiter(rate.Limit(cfg.Simulated.RatePerSecond), burst)))
			}
			adapters = append(adapters, NewSimulated(name, time.Duration(cfg.Simulated.LatencyMillis)*time.Millisecond, failureRate, opts...))
		}
	}
	return NewRegistry(allowed, adapters...), nil
}
