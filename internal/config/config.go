// Package config builds the engine's immutable configuration value. The
// staged Builder mirrors the teacher's constructor-time-validation style
// (internal/auth/service.go, messaging.Config) but is a necessary addition
// of its own: no teacher file builds a config value in stages.
package config

import (
	"errors"
	"fmt"
)

// Sentinel construction errors (spec §7 "Configuration invalid").
var (
	ErrInvalidWeights  = errors.New("scoring weights must sum to 1.0 within +/-0.01")
	ErrInvalidRadii    = errors.New("candidate radii must be strictly increasing and positive")
	ErrInvalidSurge    = errors.New("surge ratios must be strictly increasing and positive")
	ErrNegativeNumeric = errors.New("configuration value must not be negative")
)

// ScoringWeights are the six scorer factor weights (spec §4.4, §6).
type ScoringWeights struct {
	Time             float64
	SLARisk          float64
	Distance         float64
	BatchDisruption  float64
	Workload         float64
	Affinity         float64
}

func (w ScoringWeights) sum() float64 {
	return w.Time + w.SLARisk + w.Distance + w.BatchDisruption + w.Workload + w.Affinity
}

// CandidateRadii are the adaptive geographic search radii (spec §4.3).
type CandidateRadii struct {
	InitialKm                     float64
	ExpandedKm                     float64
	MaxKm                          float64
	RadiusExpansionMinutesThreshold float64
}

// BatchSizes caps orders per rider route by vehicle type (spec §4.5, §6).
type BatchSizes struct {
	Bike int
	Car  int
	Van  int
}

// ByVehicle returns the configured max batch size for a vehicle type name.
func (b BatchSizes) ByVehicle(vehicleType string) int {
	switch vehicleType {
	case "bike":
		return b.Bike
	case "car":
		return b.Car
	case "van":
		return b.Van
	default:
		return b.Bike
	}
}

// ReassignmentConfig bounds reassignment behavior (spec §4.8, §6).
type ReassignmentConfig struct {
	MaxAttempts                      int
	SuppressionRadiusMeters          float64
	TriggerEtaSpikeMinutes           float64
	TriggerHighPrioritySlaCutoffMinutes float64
}

// SurgeConfig holds surge classification thresholds and modifiers (§4.7, §6).
type SurgeConfig struct {
	SoftRatio               float64
	HardRatio               float64
	CrisisRatio             float64
	PrepositionLookbackMinutes float64
	BatchSizeIncrement      int
	RadiusExpansionFactor   float64
}

// ETAConfig holds ETA model tuning (spec §4.2, §6).
type ETAConfig struct {
	TrafficAPIRefreshSeconds float64
	RiderModelRetrainCron    string
	ServiceTimeDefaults      map[string]float64
	ETACacheMinutes          float64
}

// FatigueConfig bounds rider continuous/shift driving time (§4.3, §6).
type FatigueConfig struct {
	MaxContinuousDrivingMinutes int
	MandatoryBreakMinutes       int
	MaxShiftDrivingMinutes      int
}

// SLAConfig holds SLA risk scoring tuning (§4.4, §6).
type SLAConfig struct {
	NearBreachThresholdMinutes         float64
	BreachEscalationAlertThresholdPct  float64
	SLARiskSigmoidScale                float64
}

// Config is the engine's full immutable configuration (spec §3, §6).
type Config struct {
	CycleIntervalSeconds    float64
	MaxOrdersPerCycle       int
	MaxRidersPerAssignment  int
	OptimizerTimeoutSeconds float64
	HungarianThreshold      int

	Weights ScoringWeights
	Radii   CandidateRadii
	Batch   BatchSizes
	TwoOptIterationLimit int
	MaxBatchDurationMinutes float64

	Reassignment ReassignmentConfig
	Surge        SurgeConfig
	ETA          ETAConfig
	Fatigue      FatigueConfig
	SLA          SLAConfig
}

// Builder accumulates configuration values before a single validating Build.
// Grounded on spec.md §9 ("Configuration as a builder") — no teacher file
// stages construction this way, so the shape here is this module's own.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder seeded with the spec's documented defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: Config{
		CycleIntervalSeconds:    5,
		MaxOrdersPerCycle:       1000,
		MaxRidersPerAssignment:  1000,
		OptimizerTimeoutSeconds: 1.5,
		HungarianThreshold:      10000,
		Weights: ScoringWeights{
			Time: 0.25, SLARisk: 0.25, Distance: 0.2,
			BatchDisruption: 0.1, Workload: 0.1, Affinity: 0.1,
		},
		Radii: CandidateRadii{
			InitialKm: 5, ExpandedKm: 10, MaxKm: 20,
			RadiusExpansionMinutesThreshold: 20,
		},
		Batch:                   BatchSizes{Bike: 3, Car: 6, Van: 10},
		TwoOptIterationLimit:    100,
		MaxBatchDurationMinutes: 90,
		Reassignment: ReassignmentConfig{
			MaxAttempts:                         3,
			SuppressionRadiusMeters:             500,
			TriggerEtaSpikeMinutes:              15,
			TriggerHighPrioritySlaCutoffMinutes: 20,
		},
		Surge: SurgeConfig{
			SoftRatio: 1.2, HardRatio: 1.6, CrisisRatio: 2.0,
			PrepositionLookbackMinutes: 15,
			BatchSizeIncrement:         1,
			RadiusExpansionFactor:      1.5,
		},
		ETA: ETAConfig{
			TrafficAPIRefreshSeconds: 60,
			RiderModelRetrainCron:    "0 3 * * *",
			ServiceTimeDefaults: map[string]float64{
				"restaurant_pickup":      5,
				"dark_store_pickup":      2,
				"apartment_delivery":     4,
				"ground_floor_delivery":  1,
				"house_delivery":         3,
				"commercial_delivery":    4,
			},
			ETACacheMinutes: 10,
		},
		Fatigue: FatigueConfig{
			MaxContinuousDrivingMinutes: 120,
			MandatoryBreakMinutes:       30,
			MaxShiftDrivingMinutes:      480,
		},
		SLA: SLAConfig{
			NearBreachThresholdMinutes:        15,
			BreachEscalationAlertThresholdPct: 0.1,
			SLARiskSigmoidScale:               10,
		},
	}}
}

// WithWeights overrides the scoring weights.
func (b *Builder) WithWeights(w ScoringWeights) *Builder {
	b.cfg.Weights = w
	return b
}

// WithRadii overrides the candidate-generation radii.
func (b *Builder) WithRadii(r CandidateRadii) *Builder {
	b.cfg.Radii = r
	return b
}

// WithBatch overrides batching limits.
func (b *Builder) WithBatch(sizes BatchSizes, twoOptLimit int, maxDurationMinutes float64) *Builder {
	b.cfg.Batch = sizes
	b.cfg.TwoOptIterationLimit = twoOptLimit
	b.cfg.MaxBatchDurationMinutes = maxDurationMinutes
	return b
}

// WithReassignment overrides reassignment guard configuration.
func (b *Builder) WithReassignment(r ReassignmentConfig) *Builder {
	b.cfg.Reassignment = r
	return b
}

// WithSurge overrides surge classification thresholds and modifiers.
func (b *Builder) WithSurge(s SurgeConfig) *Builder {
	b.cfg.Surge = s
	return b
}

// WithETA overrides ETA model tuning.
func (b *Builder) WithETA(e ETAConfig) *Builder {
	b.cfg.ETA = e
	return b
}

// WithFatigue overrides fatigue limits.
func (b *Builder) WithFatigue(f FatigueConfig) *Builder {
	b.cfg.Fatigue = f
	return b
}

// WithSLA overrides SLA risk tuning.
func (b *Builder) WithSLA(s SLAConfig) *Builder {
	b.cfg.SLA = s
	return b
}

// WithCycle overrides cycle-level knobs.
func (b *Builder) WithCycle(intervalSeconds float64, maxOrders, maxRiders int, optimizerTimeoutSeconds float64, hungarianThreshold int) *Builder {
	b.cfg.CycleIntervalSeconds = intervalSeconds
	b.cfg.MaxOrdersPerCycle = maxOrders
	b.cfg.MaxRidersPerAssignment = maxRiders
	b.cfg.OptimizerTimeoutSeconds = optimizerTimeoutSeconds
	b.cfg.HungarianThreshold = hungarianThreshold
	return b
}

// Build validates every invariant in spec.md §3/§6 and returns a defensive
// copy. The staged value must not be mutated after Build (spec §9).
func (b *Builder) Build() (*Config, error) {
	cfg := b.cfg

	if sum := cfg.Weights.sum(); sum < 0.99 || sum > 1.01 {
		return nil, fmt.Errorf("%w: got %.4f", ErrInvalidWeights, sum)
	}

	if cfg.Radii.InitialKm <= 0 || cfg.Radii.ExpandedKm <= cfg.Radii.InitialKm || cfg.Radii.MaxKm <= cfg.Radii.ExpandedKm {
		return nil, fmt.Errorf("%w: initial=%.2f expanded=%.2f max=%.2f",
			ErrInvalidRadii, cfg.Radii.InitialKm, cfg.Radii.ExpandedKm, cfg.Radii.MaxKm)
	}

	if cfg.Surge.SoftRatio <= 0 || cfg.Surge.HardRatio <= cfg.Surge.SoftRatio || cfg.Surge.CrisisRatio <= cfg.Surge.HardRatio {
		return nil, fmt.Errorf("%w: soft=%.2f hard=%.2f crisis=%.2f",
			ErrInvalidSurge, cfg.Surge.SoftRatio, cfg.Surge.HardRatio, cfg.Surge.CrisisRatio)
	}

	for name, v := range map[string]float64{
		"cycleIntervalSeconds":    cfg.CycleIntervalSeconds,
		"optimizerTimeoutSeconds": cfg.OptimizerTimeoutSeconds,
		"maxBatchDurationMinutes": cfg.MaxBatchDurationMinutes,
		"suppressionRadiusMeters": cfg.Reassignment.SuppressionRadiusMeters,
		"triggerEtaSpikeMinutes":  cfg.Reassignment.TriggerEtaSpikeMinutes,
		"etaCacheMinutes":         cfg.ETA.ETACacheMinutes,
		"slaRiskSigmoidScale":     cfg.SLA.SLARiskSigmoidScale,
		"radiusExpansionMinutesThreshold":     cfg.Radii.RadiusExpansionMinutesThreshold,
		"triggerHighPrioritySlaCutoffMinutes": cfg.Reassignment.TriggerHighPrioritySlaCutoffMinutes,
		"prepositionLookbackMinutes":          cfg.Surge.PrepositionLookbackMinutes,
		"radiusExpansionFactor":               cfg.Surge.RadiusExpansionFactor,
		"trafficApiRefreshSeconds":            cfg.ETA.TrafficAPIRefreshSeconds,
		"nearBreachThresholdMinutes":          cfg.SLA.NearBreachThresholdMinutes,
		"breachEscalationAlertThresholdPct":   cfg.SLA.BreachEscalationAlertThresholdPct,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%w: %s = %.4f", ErrNegativeNumeric, name, v)
		}
	}
	if cfg.MaxOrdersPerCycle < 0 || cfg.MaxRidersPerAssignment < 0 || cfg.HungarianThreshold < 0 ||
		cfg.TwoOptIterationLimit < 0 || cfg.Reassignment.MaxAttempts < 0 ||
		cfg.Fatigue.MaxContinuousDrivingMinutes < 0 || cfg.Fatigue.MaxShiftDrivingMinutes < 0 ||
		cfg.Fatigue.MandatoryBreakMinutes < 0 || cfg.Surge.BatchSizeIncrement < 0 ||
		cfg.Batch.Bike < 0 || cfg.Batch.Car < 0 || cfg.Batch.Van < 0 {
		return nil, ErrNegativeNumeric
	}

	serviceDefaults := make(map[string]float64, len(cfg.ETA.ServiceTimeDefaults))
	for k, v := range cfg.ETA.ServiceTimeDefaults {
		if v < 0 {
			return nil, fmt.Errorf("%w: serviceTimeDefaults[%s] = %.2f", ErrNegativeNumeric, k, v)
		}
		serviceDefaults[k] = v
	}
	cfg.ETA.ServiceTimeDefaults = serviceDefaults

	return &cfg, nil
}
