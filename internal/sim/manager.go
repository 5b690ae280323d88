package sim

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand"
	"sort"
	"sync"
	"time"

	"intersection-sim/server/internal/advisor"
	"intersection-sim/server/internal/agent"
	"intersection-sim/server/internal/background"
	"intersection-sim/server/internal/breaker"
	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/config"
	"intersection-sim/server/internal/coordinator"
	"intersection-sim/server/internal/priority"
	"intersection-sim/server/internal/trafficlight"
	"intersection-sim/server/internal/v2x"
	"intersection-sim/server/logging"
)

// backgroundExitRadius is how far past an intersection's center a
// background vehicle that has already passed through travels before it is
// despawned and its population slot freed for a replacement.
const backgroundExitRadius = 45.0

// vehicleState is one live vehicle's kinematic state plus the bookkeeping
// the tick scheduler needs: its decision pipeline, its assigned
// intersection, and its export/fault counters.
type vehicleState struct {
	id         v2x.AgentId
	profile    agent.Profile
	flags      agent.Flags
	background bool

	x, y, v, heading float64
	intent           v2x.Intent

	intersectionID     string
	insideIntersection bool
	wasInside          bool
	hasEntered         bool
	pullingOver        bool

	llmCalls          uint64
	consecutiveFaults int

	pipeline     *agent.Vehicle
	lastDecision agent.Decision
	lastRisk     collision.RiskLevel
}

// Manager is the simulation kernel's single owner of every shared
// component: the V2X channel and its security filter, the collision
// detector, the priority arbiter, the traffic lights and intersection
// coordinators, the circuit breaker and guarded advisor, the background
// traffic driver, and the live agent roster. Every control-surface
// operation and every tick goes through it under its single mutex.
type Manager struct {
	mu sync.Mutex

	cfg    config.RuntimeConfig
	router *logging.Router
	logger logging.Publisher

	innerAdvisor advisor.Advisor
	randSource   *mathrand.Rand
	rand         func() float64

	key []byte

	channel  *v2x.Channel
	filter   *v2x.SecurityFilter
	detector *collision.Detector
	arbiter  *priority.Arbiter
	breaker  *breaker.Breaker
	guarded  *advisor.Guarded

	backgroundDriver *background.Driver

	intersections map[string]*coordinator.Intersection
	lights        map[string]*trafficlight.Light
	zones         []priority.Zone

	vehicles map[v2x.AgentId]*vehicleState
	order    []v2x.AgentId

	mode              Mode
	scenarioID        string
	customScenario    *ScenarioSpec
	running           bool
	backgroundEnabled bool

	tick        uint64
	elapsed     float64
	lastTickAt  time.Time

	lastPairs            []collision.Pair
	preventedSeen        map[[2]v2x.AgentId]struct{}
	collisionsPrevented  uint64
	lateYields           uint64
	successfulPreemptions uint64
	activePreemptions    map[v2x.AgentId]bool

	coordDecisions map[string]coordinator.Decision
}

// NewManager constructs a manager bound to cfg. router may be nil (events
// are discarded); innerAdvisor may be nil (a deterministic Heuristic is
// used); randSource may be nil (a fixed seed is used, which is
// deterministic but makes every run identical — callers that want varied
// runs must inject their own source).
func NewManager(cfg config.RuntimeConfig, router *logging.Router, innerAdvisor advisor.Advisor, randSource *mathrand.Rand) *Manager {
	if randSource == nil {
		randSource = mathrand.New(mathrand.NewSource(1))
	}
	var logger logging.Publisher = logging.NopPublisher()
	if router != nil {
		logger = router
	}
	return &Manager{
		cfg:          cfg.Normalized(),
		router:       router,
		logger:       logger,
		innerAdvisor: innerAdvisor,
		randSource:   randSource,
		rand:         randSource.Float64,
	}
}

// Init prepares the manager to run in mode: it derives the process-global
// HMAC key, builds every shared component, and resets the agent roster.
// It must be called once before Start.
func (m *Manager) Init(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return m.initLocked()
}

func (m *Manager) initLocked() error {
	key, err := m.resolveKey()
	if err != nil {
		return err
	}
	m.key = key

	m.filter = v2x.NewSecurityFilter(key, m.cfg.VMax, m.cfg.StaleAfter, m.cfg.RateLimitBurst, m.cfg.RateLimitPerSec)
	m.channel = v2x.NewChannel(m.filter, 256, m.logger)
	m.detector = collision.NewDetector(m.cfg.PrefilterRadius, m.cfg.CollisionRadius, m.cfg.HorizonSeconds, m.logger)
	m.arbiter = priority.NewArbiter(m.cfg.EmergencyPreemptRadius, m.cfg.ArrivalRadius, m.logger)
	m.breaker = breaker.NewBreaker(m.cfg.BreakerFailureLimit, m.cfg.BreakerWindow, m.cfg.BreakerCooldown, m.logger)

	inner := m.innerAdvisor
	if inner == nil {
		inner = advisor.NewHeuristic(m.rand)
	}
	m.guarded = advisor.NewGuarded(inner, m.breaker, m.cfg.AdvisorTimeout, m.cfg.VMax)

	grid := background.GridLayout{Cols: m.cfg.GridCols, Rows: m.cfg.GridRows, Spacing: m.cfg.GridSpacing}
	m.backgroundDriver = background.NewDriver(m.cfg.BackgroundPopulation, grid, m.randSource)

	m.vehicles = make(map[v2x.AgentId]*vehicleState)
	m.order = nil
	m.intersections = make(map[string]*coordinator.Intersection)
	m.lights = make(map[string]*trafficlight.Light)
	m.zones = nil
	m.coordDecisions = make(map[string]coordinator.Decision)
	m.preventedSeen = make(map[[2]v2x.AgentId]struct{})
	m.activePreemptions = make(map[v2x.AgentId]bool)
	m.running = false
	m.tick = 0
	m.elapsed = 0
	m.lastTickAt = time.Time{}
	return nil
}

// resolveKey decodes the configured HMAC key, or generates one from the
// operating system's cryptographic source when unset. Generating from
// crypto/rand rather than the manager's seeded math/rand source is
// deliberate: the key is a secret, not simulation state, and must not be
// reproducible from a known seed.
func (m *Manager) resolveKey() ([]byte, error) {
	if m.cfg.SharedHMACKeyHex != "" {
		key, err := hex.DecodeString(m.cfg.SharedHMACKeyHex)
		if err != nil {
			return nil, fmt.Errorf("sim: decode sharedHMACKeyHex: %w", err)
		}
		return key, nil
	}
	key := make([]byte, 32)
	if _, err := cryptorand.Read(key); err != nil {
		return nil, fmt.Errorf("sim: generate HMAC key: %w", err)
	}
	return key, nil
}

// LoadScenario registers an ad hoc scenario document (loaded from disk via
// config.LoadScenarioDocument) so a later Start(doc.ID) can run it
// alongside the seven built-in identifiers.
func (m *Manager) LoadScenario(doc config.ScenarioDocument) error {
	spec, err := scenarioFromDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customScenario = &spec
	return nil
}

func scenarioFromDocument(doc config.ScenarioDocument) (ScenarioSpec, error) {
	spec := ScenarioSpec{ID: doc.ID, Description: doc.Description}
	for _, iz := range doc.Intersections {
		spec.Intersections = append(spec.Intersections, IntersectionSpec{
			ID: iz.ID, CenterX: iz.CenterX, CenterY: iz.CenterY, Controlled: iz.Controlled,
		})
	}
	for _, a := range doc.Agents {
		profile := agent.Profile(a.Profile)
		switch profile {
		case agent.ProfileNormal, agent.ProfileAmbulance, agent.ProfilePolice, agent.ProfileDrunk:
		default:
			return ScenarioSpec{}, fmt.Errorf("sim: scenario %s: agent %s has unknown profile %q", doc.ID, a.ID, a.Profile)
		}
		intent := v2x.Intent(a.Intent)
		switch intent {
		case v2x.IntentThrough, v2x.IntentLeft, v2x.IntentRight:
		default:
			return ScenarioSpec{}, fmt.Errorf("sim: scenario %s: agent %s has unknown intent %q", doc.ID, a.ID, a.Intent)
		}
		spec.Agents = append(spec.Agents, AgentSpec{
			ID: a.ID, X: a.X, Y: a.Y, HeadingDeg: a.HeadingDeg, SpeedMPS: a.SpeedMPS, Intent: intent, Profile: profile,
		})
	}
	return spec, nil
}

// Start resets all per-run state and loads scenarioID, which must be
// either one of the seven built-in identifiers or a previously loaded ad
// hoc scenario's ID.
func (m *Manager) Start(scenarioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	spec, ok := BuiltinScenario(scenarioID)
	if !ok {
		if m.customScenario != nil && m.customScenario.ID == scenarioID {
			spec = *m.customScenario
		} else {
			return fmt.Errorf("sim: start %q: %w", scenarioID, ErrUnknownScenario)
		}
	}

	if err := m.initLocked(); err != nil {
		return err
	}

	m.scenarioID = spec.ID
	m.buildIntersections(spec.Intersections)
	for _, a := range spec.Agents {
		vs := m.newVehicleState(v2x.AgentId(a.ID), a.Profile, a.X, a.Y, a.HeadingDeg, a.SpeedMPS, a.Intent, false)
		m.addVehicle(vs)
	}
	m.running = true
	return nil
}

// Stop halts the tick scheduler without discarding the current run's
// state; GetState keeps returning the last computed snapshot with
// running=false.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Restart re-runs the current scenario from scratch.
func (m *Manager) Restart() error {
	m.mu.Lock()
	scenarioID := m.scenarioID
	m.mu.Unlock()
	if scenarioID == "" {
		return fmt.Errorf("sim: restart: %w", ErrNotRunning)
	}
	return m.Start(scenarioID)
}

// Spawn adds one ad hoc vehicle of the given kind at a randomly chosen
// approach on the active scenario's grid, reusing the background driver's
// spawn geometry rather than a separate placement rule.
func (m *Manager) Spawn(kind SpawnKind) (v2x.AgentId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return "", fmt.Errorf("sim: spawn: %w", ErrNotRunning)
	}
	profile, ok := profileForSpawnKind(kind)
	if !ok {
		return "", fmt.Errorf("sim: spawn %q: %w", kind, ErrUnknownSpawn)
	}

	req := m.backgroundDriver.SpawnOne()
	vs := m.newVehicleState(req.ID, profile, req.X, req.Y, req.Heading, req.SpeedMPS, req.Intent, false)
	m.addVehicle(vs)
	return vs.id, nil
}

func profileForSpawnKind(kind SpawnKind) (agent.Profile, bool) {
	switch kind {
	case SpawnDrunk:
		return agent.ProfileDrunk, true
	case SpawnPolice:
		return agent.ProfilePolice, true
	case SpawnAmbulance:
		return agent.ProfileAmbulance, true
	default:
		return "", false
	}
}

// ToggleBackgroundTraffic flips whether the background driver maintains
// its target population and returns the new state.
func (m *Manager) ToggleBackgroundTraffic() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backgroundEnabled = !m.backgroundEnabled
	return m.backgroundEnabled
}

// GetState returns the current exported state document.
func (m *Manager) GetState() ExportedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exportLocked()
}

// TelemetryReport returns the security filter's rejection counters and the
// logging router's delivery counters.
func (m *Manager) TelemetryReport() TelemetryReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := TelemetryReport{}
	if m.filter != nil {
		report.Security = m.filter.Stats()
	}
	if m.router != nil {
		report.Router = m.router.Stats()
	}
	return report
}

func (m *Manager) buildIntersections(specs []IntersectionSpec) {
	for _, s := range specs {
		iz := coordinator.NewIntersection(s.ID, s.CenterX, s.CenterY, m.cfg.CenterBoxHalf, m.cfg.ArrivalRadius, s.Controlled, m.logger)
		m.intersections[s.ID] = iz
		m.zones = append(m.zones, priority.Zone{ID: s.ID, CenterX: s.CenterX, CenterY: s.CenterY, Controlled: s.Controlled})
		if s.Controlled {
			m.lights[s.ID] = trafficlight.NewLight(s.ID, m.cfg.PhaseGreenSeconds, m.cfg.PhaseAllRedSeconds, m.cfg.EmergencyAllRedSeconds, m.cfg.StarvationCreditSeconds, m.logger)
		}
	}
}

// newVehicleState builds a vehicle and its decision pipeline. Background
// vehicles get a no-op telemetry publisher: their volume would otherwise
// drown out the named, scenario-relevant agents' decision and near-miss
// events, so only the scenario roster and ad hoc spawns are logged.
func (m *Manager) newVehicleState(id v2x.AgentId, profile agent.Profile, x, y, heading, speed float64, intent v2x.Intent, isBackground bool) *vehicleState {
	pipelineLogger := m.logger
	if isBackground {
		pipelineLogger = logging.NopPublisher()
	}
	mem := agent.NewMemory(m.cfg.MemoryCapacity)
	pipeline := agent.NewVehicle(id, profile, mem, m.guarded, m.rand, pipelineLogger)
	return &vehicleState{
		id:         id,
		profile:    profile,
		flags:      agent.FlagsFor(profile),
		background: isBackground,
		x:          x,
		y:          y,
		v:          speed,
		heading:    normalizeHeading(heading),
		intent:     intent,
		pipeline:   pipeline,
		lastRisk:   collision.RiskLow,
	}
}

func (m *Manager) addVehicle(vs *vehicleState) {
	m.vehicles[vs.id] = vs
	m.order = append(m.order, vs.id)
	sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
}

func (m *Manager) despawnVehicle(id v2x.AgentId) {
	delete(m.vehicles, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
