// Package eta implements the per-(origin,destination,minute) estimate used
// by the scorer: a bounded cache, an hour-of-day traffic multiplier, an
// online per-rider speed model, and a pluggable external traffic provider.
// Grounded on the teacher's internal/positions/tracker.go (per-entity
// online-updated model held in a mutex-guarded map) and on
// pkg/circuit/breaker.go for wrapping the optional external call.
package eta

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/geo"
	"github.com/terminal-bench/dispatchengine/pkg/cache"
	"github.com/terminal-bench/dispatchengine/pkg/circuit"
)

// TrafficProvider is the pluggable, credentialed external collaborator
// (black box behind this one operation, per spec.md §1). Absent by
// default; the model degrades to the pure hour-of-day multiplier.
type TrafficProvider interface {
	TrafficMultiplier(ctx context.Context, origin, destination domain.Location, departureTime time.Time) (float64, error)
}

// Estimate is the ETA model's output contract (spec §4.2).
type Estimate struct {
	EstimatedDurationMinutes int
	Confidence               float64
	BaseTimeMinutes          float64
	TrafficMultiplier        float64
	RiderSpeedMultiplier     float64
	ServiceTimeMinutes       float64
}

// LegEstimate is one leg of a chained route estimate.
type LegEstimate struct {
	From     domain.Location
	To       domain.Location
	Estimate Estimate
}

// RouteEstimate is the result of estimateRouteETA.
type RouteEstimate struct {
	TotalDurationMinutes int
	Legs                 []LegEstimate
}

// CacheStats reports cache and rider-model sizes for telemetry.
type CacheStats struct {
	CacheEntries int
	RiderModels  int
}

type riderModel struct {
	speedMultiplier    float64
	familiarZones      map[string]bool
	trainingDatapoints int
	lastUpdated        time.Time
}

type cacheEntry struct {
	Estimate  Estimate
	CachedAt  time.Time
}

// Model is the engine-owned ETA estimator. Per-rider models and the
// estimate cache live for the Model's lifetime (spec §9).
type Model struct {
	cfg    config.ETAConfig
	store  cache.Store
	breaker *circuit.Breaker
	provider TrafficProvider

	mu    sync.Mutex
	rng   *rand.Rand
	riders map[string]*riderModel
}

// Option configures optional Model collaborators.
type Option func(*Model)

// WithCacheStore overrides the default in-memory cache store (e.g. a
// Redis-backed store for sharing warm cache state across restarts).
func WithCacheStore(store cache.Store) Option {
	return func(m *Model) { m.store = store }
}

// WithTrafficProvider wires an external traffic API behind a circuit
// breaker; on trip or error the model degrades to the pure estimate and
// reports reduced confidence (spec §7).
func WithTrafficProvider(provider TrafficProvider, breakerCfg circuit.Config) Option {
	return func(m *Model) {
		breakerCfg.Name = "eta-traffic-provider"
		m.provider = provider
		m.breaker = circuit.NewBreaker(breakerCfg)
	}
}

// WithRandSource plumbs a seedable random source for deterministic tests
// (spec §9 "Randomness").
func WithRandSource(rng *rand.Rand) Option {
	return func(m *Model) { m.rng = rng }
}

// NewModel constructs an ETA model from validated ETA configuration.
func NewModel(cfg config.ETAConfig, opts ...Option) *Model {
	m := &Model{
		cfg:    cfg,
		store:  cache.NewInMemoryStore(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		riders: make(map[string]*riderModel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func roundTo4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func cacheKey(origin, destination domain.Location, departureTime time.Time) string {
	minute := departureTime.Truncate(time.Minute)
	return fmt.Sprintf("%.4f,%.4f->%.4f,%.4f@%d",
		roundTo4(origin.Lat), roundTo4(origin.Lng),
		roundTo4(destination.Lat), roundTo4(destination.Lng),
		minute.Unix())
}

func hourOfDayMultiplier(t time.Time) float64 {
	hour := t.Hour()
	switch {
	case hour >= 8 && hour < 10:
		return 1.5
	case hour >= 17 && hour < 19:
		return 1.5
	case hour >= 22 || hour < 6:
		return 1.1
	default:
		return 1.0
	}
}

// EstimateETA computes estimateETA (spec §4.2). riderID and buildingType
// are optional; pass "" when absent.
func (m *Model) EstimateETA(ctx context.Context, origin, destination domain.Location, departureTime time.Time, riderID, buildingType string) Estimate {
	key := cacheKey(origin, destination, departureTime)

	var cached cacheEntry
	if ok, err := m.store.Get(ctx, key, &cached); err == nil && ok {
		ttl := time.Duration(m.cfg.ETACacheMinutes * float64(time.Minute))
		if time.Since(cached.CachedAt) < ttl {
			return cached.Estimate
		}
	}

	baseTime := geo.Distance(origin, destination) / geo.DefaultAvgSpeedKmh * 60

	trafficMultiplier, confidence := m.resolveTrafficMultiplier(ctx, origin, destination, departureTime)

	riderSpeedMultiplier := 1.0
	if riderID != "" {
		riderSpeedMultiplier = m.riderSpeedMultiplier(riderID)
	}

	serviceTime := 0.0
	if buildingType != "" {
		if v, ok := m.cfg.ServiceTimeDefaults[buildingType]; ok {
			serviceTime = v
		}
	}

	travelTime := math.Round(baseTime * trafficMultiplier * riderSpeedMultiplier)
	duration := int(travelTime) + int(math.Round(serviceTime))

	estimate := Estimate{
		EstimatedDurationMinutes: duration,
		Confidence:               confidence,
		BaseTimeMinutes:          baseTime,
		TrafficMultiplier:        trafficMultiplier,
		RiderSpeedMultiplier:     riderSpeedMultiplier,
		ServiceTimeMinutes:       serviceTime,
	}

	ttl := time.Duration(m.cfg.ETACacheMinutes * float64(time.Minute))
	_ = m.store.Set(ctx, key, cacheEntry{Estimate: estimate, CachedAt: time.Now()}, ttl)

	return estimate
}

// resolveTrafficMultiplier uses the external provider (if wired) behind a
// circuit breaker, falling back to the pure hour-of-day multiplier on
// error or trip — degraded confidence surfaces the fallback (spec §7).
func (m *Model) resolveTrafficMultiplier(ctx context.Context, origin, destination domain.Location, departureTime time.Time) (float64, float64) {
	baseConfidence := 0.75 + m.randFloat()*0.20 // [0.75, 0.95]

	if m.provider == nil {
		return hourOfDayMultiplier(departureTime), baseConfidence
	}

	var multiplier float64
	err := m.breaker.Execute(ctx, func() error {
		v, err := m.provider.TrafficMultiplier(ctx, origin, destination, departureTime)
		if err != nil {
			return err
		}
		multiplier = v
		return nil
	})
	if err != nil {
		return hourOfDayMultiplier(departureTime), 0.75
	}
	return multiplier, baseConfidence
}

func (m *Model) randFloat() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

// riderSpeedMultiplier looks up (or lazily initializes) a rider's speed
// model, returning its current multiplier.
func (m *Model) riderSpeedMultiplier(riderID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.riders[riderID]
	if !ok {
		rm = &riderModel{
			speedMultiplier: 0.8 + m.rng.Float64()*0.4, // [0.8, 1.2]
			familiarZones:   make(map[string]bool),
			lastUpdated:     time.Now(),
		}
		m.riders[riderID] = rm
	}
	return rm.speedMultiplier
}

// EstimateRouteETA chains pairwise estimates, advancing the clock by each
// leg's duration (spec §4.2).
func (m *Model) EstimateRouteETA(ctx context.Context, locations []domain.Location, startTime time.Time, riderID string) RouteEstimate {
	result := RouteEstimate{Legs: make([]LegEstimate, 0, max(0, len(locations)-1))}
	if len(locations) < 2 {
		return result
	}

	clock := startTime
	total := 0
	for i := 0; i+1 < len(locations); i++ {
		from, to := locations[i], locations[i+1]
		est := m.EstimateETA(ctx, from, to, clock, riderID, "")
		result.Legs = append(result.Legs, LegEstimate{From: from, To: to, Estimate: est})
		total += est.EstimatedDurationMinutes
		clock = clock.Add(time.Duration(est.EstimatedDurationMinutes) * time.Minute)
	}
	result.TotalDurationMinutes = total
	return result
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// UpdateRiderModel applies the EWMA speed update, records the zone, and
// increments the training counter (spec §4.2).
func (m *Model) UpdateRiderModel(riderID string, actualDurationMinutes, estimatedDurationMinutes float64, zone string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.riders[riderID]
	if !ok {
		rm = &riderModel{
			speedMultiplier: 1.0,
			familiarZones:   make(map[string]bool),
		}
		m.riders[riderID] = rm
	}

	observed := estimatedDurationMinutes / math.Max(actualDurationMinutes, 1)
	rm.speedMultiplier = 0.9*rm.speedMultiplier + 0.1*observed
	rm.familiarZones[zone] = true
	rm.trainingDatapoints++
	rm.lastUpdated = time.Now()
}

// ClearExpiredCache sweeps estimate-cache entries older than
// etaCacheMinutes (spec §4.2).
func (m *Model) ClearExpiredCache(ctx context.Context) {
	m.store.Keys(ctx) // triggers lazy sweep in InMemoryStore; no-op for TTL-native stores
}

// GetCacheStats exposes cache and rider-model sizes for telemetry (§4.2).
func (m *Model) GetCacheStats(ctx context.Context) CacheStats {
	m.mu.Lock()
	riderCount := len(m.riders)
	m.mu.Unlock()
	return CacheStats{
		CacheEntries: m.store.Len(ctx),
		RiderModels:  riderCount,
	}
}

// ZoneKey returns the coarse zone bucket for a location (spec §4.4).
func ZoneKey(loc domain.Location) string {
	return fmt.Sprintf("zone_%d_%d", int(math.Floor(loc.Lat/0.5)), int(math.Floor(loc.Lng/0.5)))
}
