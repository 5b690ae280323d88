// Package config defines the runtime tuning parameters for the simulation
// kernel and the defaults/normalization rules applied to them.
package config

import "time"

// RuntimeConfig collects every numeric knob named in the specification so
// scenario authors and tests can override a subset while relying on sane
// defaults for the rest.
type RuntimeConfig struct {
	TickRateHz      int     `yaml:"tickRateHz"`
	CatchupMaxTicks int     `yaml:"catchupMaxTicks"`
	WorkerPoolSize  int     `yaml:"workerPoolSize"`

	VMax float64 `yaml:"vMax"`

	// V2X / security filter.
	StaleAfter        time.Duration `yaml:"staleAfter"`
	RateLimitPerSec   float64       `yaml:"rateLimitPerSec"`
	RateLimitBurst    float64       `yaml:"rateLimitBurst"`
	LivenessTimeout   time.Duration `yaml:"livenessTimeout"`
	SharedHMACKeyHex  string        `yaml:"sharedHMACKeyHex"`

	// Collision detector.
	PrefilterRadius   float64 `yaml:"prefilterRadius"`
	CollisionRadius   float64 `yaml:"collisionRadius"`
	HorizonSeconds    float64 `yaml:"horizonSeconds"`

	// Priority / preemption.
	EmergencyPreemptRadius float64 `yaml:"emergencyPreemptRadius"`

	// Intersection coordinator.
	ArrivalRadius float64 `yaml:"arrivalRadius"`
	CenterBoxHalf float64 `yaml:"centerBoxHalf"`

	// Traffic light.
	PhaseGreenSeconds     float64 `yaml:"phaseGreenSeconds"`
	PhaseAllRedSeconds    float64 `yaml:"phaseAllRedSeconds"`
	EmergencyAllRedSeconds float64 `yaml:"emergencyAllRedSeconds"`
	StarvationCreditSeconds float64 `yaml:"starvationCreditSeconds"`

	// Advisor + circuit breaker.
	AdvisorTimeout        time.Duration `yaml:"advisorTimeout"`
	BreakerFailureLimit   int           `yaml:"breakerFailureLimit"`
	BreakerWindow         time.Duration `yaml:"breakerWindow"`
	BreakerCooldown       time.Duration `yaml:"breakerCooldown"`

	// Agent decision pipeline.
	ObservationRadius float64 `yaml:"observationRadius"`
	FollowGapSeconds  float64 `yaml:"followGapSeconds"`
	MemoryCapacity    int     `yaml:"memoryCapacity"`
	MaxConsecutiveFaults int  `yaml:"maxConsecutiveFaults"`

	// Background traffic.
	BackgroundPopulation int     `yaml:"backgroundPopulation"`
	GridCols             int     `yaml:"gridCols"`
	GridRows             int     `yaml:"gridRows"`
	GridSpacing          float64 `yaml:"gridSpacing"`

	// Cooperation score weights.
	CooperationK1 float64 `yaml:"cooperationK1"`
	CooperationK2 float64 `yaml:"cooperationK2"`
	CooperationK3 float64 `yaml:"cooperationK3"`
}

// DefaultRuntimeConfig returns the specification's stated defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		TickRateHz:      20,
		CatchupMaxTicks: 2,
		WorkerPoolSize:  0, // 0 means "derive from runtime.NumCPU() and agent count"

		VMax: 25,

		StaleAfter:       5 * time.Second,
		RateLimitPerSec:  20,
		RateLimitBurst:   20,
		LivenessTimeout:  5 * time.Second,
		SharedHMACKeyHex: "",

		PrefilterRadius: 40,
		CollisionRadius: 3,
		HorizonSeconds:  5,

		EmergencyPreemptRadius: 60,

		ArrivalRadius: 30,
		CenterBoxHalf: 6,

		PhaseGreenSeconds:       15,
		PhaseAllRedSeconds:      2,
		EmergencyAllRedSeconds:  1,
		StarvationCreditSeconds: 5,

		AdvisorTimeout:      800 * time.Millisecond,
		BreakerFailureLimit: 5,
		BreakerWindow:       30 * time.Second,
		BreakerCooldown:     30 * time.Second,

		ObservationRadius:    50,
		FollowGapSeconds:     2,
		MemoryCapacity:       20,
		MaxConsecutiveFaults: 5,

		BackgroundPopulation: 25,
		GridCols:             5,
		GridRows:             5,
		GridSpacing:          120,

		CooperationK1: 5,
		CooperationK2: 2,
		CooperationK3: 3,
	}
}

// Normalized fills in zero-valued fields with defaults and clamps values
// that would otherwise be nonsensical (negative counts, radii, etc). It
// mirrors the "defaults, then normalize" shape used elsewhere for scenario
// configuration.
func (c RuntimeConfig) Normalized() RuntimeConfig {
	d := DefaultRuntimeConfig()
	n := c

	if n.TickRateHz <= 0 {
		n.TickRateHz = d.TickRateHz
	}
	if n.CatchupMaxTicks <= 0 {
		n.CatchupMaxTicks = d.CatchupMaxTicks
	}
	if n.WorkerPoolSize < 0 {
		n.WorkerPoolSize = 0
	}
	if n.VMax <= 0 {
		n.VMax = d.VMax
	}
	if n.StaleAfter <= 0 {
		n.StaleAfter = d.StaleAfter
	}
	if n.RateLimitPerSec <= 0 {
		n.RateLimitPerSec = d.RateLimitPerSec
	}
	if n.RateLimitBurst <= 0 {
		n.RateLimitBurst = d.RateLimitBurst
	}
	if n.LivenessTimeout <= 0 {
		n.LivenessTimeout = d.LivenessTimeout
	}
	if n.PrefilterRadius <= 0 {
		n.PrefilterRadius = d.PrefilterRadius
	}
	if n.CollisionRadius <= 0 {
		n.CollisionRadius = d.CollisionRadius
	}
	if n.HorizonSeconds <= 0 {
		n.HorizonSeconds = d.HorizonSeconds
	}
	if n.EmergencyPreemptRadius <= 0 {
		n.EmergencyPreemptRadius = d.EmergencyPreemptRadius
	}
	if n.ArrivalRadius <= 0 {
		n.ArrivalRadius = d.ArrivalRadius
	}
	if n.CenterBoxHalf <= 0 {
		n.CenterBoxHalf = d.CenterBoxHalf
	}
	if n.PhaseGreenSeconds <= 0 {
		n.PhaseGreenSeconds = d.PhaseGreenSeconds
	}
	if n.PhaseAllRedSeconds <= 0 {
		n.PhaseAllRedSeconds = d.PhaseAllRedSeconds
	}
	if n.EmergencyAllRedSeconds <= 0 {
		n.EmergencyAllRedSeconds = d.EmergencyAllRedSeconds
	}
	if n.StarvationCreditSeconds < 0 {
		n.StarvationCreditSeconds = d.StarvationCreditSeconds
	}
	if n.AdvisorTimeout <= 0 {
		n.AdvisorTimeout = d.AdvisorTimeout
	}
	if n.BreakerFailureLimit <= 0 {
		n.BreakerFailureLimit = d.BreakerFailureLimit
	}
	if n.BreakerWindow <= 0 {
		n.BreakerWindow = d.BreakerWindow
	}
	if n.BreakerCooldown <= 0 {
		n.BreakerCooldown = d.BreakerCooldown
	}
	if n.ObservationRadius <= 0 {
		n.ObservationRadius = d.ObservationRadius
	}
	if n.FollowGapSeconds <= 0 {
		n.FollowGapSeconds = d.FollowGapSeconds
	}
	if n.MemoryCapacity <= 0 {
		n.MemoryCapacity = d.MemoryCapacity
	}
	if n.MemoryCapacity > 20 {
		n.MemoryCapacity = 20
	}
	if n.MaxConsecutiveFaults <= 0 {
		n.MaxConsecutiveFaults = d.MaxConsecutiveFaults
	}
	if n.BackgroundPopulation < 0 {
		n.BackgroundPopulation = 0
	}
	if n.GridCols <= 0 {
		n.GridCols = d.GridCols
	}
	if n.GridRows <= 0 {
		n.GridRows = d.GridRows
	}
	if n.GridSpacing <= 0 {
		n.GridSpacing = d.GridSpacing
	}
	if n.CooperationK1 == 0 && n.CooperationK2 == 0 && n.CooperationK3 == 0 {
		n.CooperationK1, n.CooperationK2, n.CooperationK3 = d.CooperationK1, d.CooperationK2, d.CooperationK3
	}
	return n
}

// NominalDT returns the fixed tick step in seconds.
func (c RuntimeConfig) NominalDT() float64 {
	if c.TickRateHz <= 0 {
		return 1.0 / 20.0
	}
	return 1.0 / float64(c.TickRateHz)
}

// MaxDT returns the wall-clock dt cap used to avoid position jumps after a
// stall, per the tick scheduler's catch-up rule.
func (c RuntimeConfig) MaxDT() float64 {
	return c.NominalDT() * float64(c.CatchupMaxTicks)
}
