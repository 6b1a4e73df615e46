// Package engine implements the cycle orchestrator (spec §4.9): it owns
// engine state, wires together the geo/ETA/candidate/scoring/batch/
// optimizer/surge/reassignment subsystems, and runs one assignment cycle
// per invocation. Grounded on internal/matching.Engine's shape (mutex-
// guarded maps, optional messaging.Client, ticker-driven Start/Stop,
// GetStats) from the teacher, adapted from order-book matching to the
// dispatch domain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/dispatchengine/internal/batch"
	"github.com/terminal-bench/dispatchengine/internal/candidate"
	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/eta"
	"github.com/terminal-bench/dispatchengine/internal/optimizer"
	"github.com/terminal-bench/dispatchengine/internal/reassign"
	"github.com/terminal-bench/dispatchengine/internal/scoring"
	"github.com/terminal-bench/dispatchengine/internal/surge"
	"github.com/terminal-bench/dispatchengine/pkg/checkpoint"
	"github.com/terminal-bench/dispatchengine/pkg/messaging"
)

// ErrCycleInProgress is returned when executeCycle is invoked while a
// previous cycle on the same engine has not finished (spec §5 — "MUST
// NOT allow concurrent executeCycle calls on the same engine").
var ErrCycleInProgress = errors.New("cycle already in progress")

// AssignmentDecision is one resolved (order, rider) pairing (spec §6).
type AssignmentDecision struct {
	OrderID       string
	RiderID       string
	SequenceIndex int
}

// CycleMetrics is the per-cycle aggregate (spec §6, plus AlgorithmUsed per
// SPEC_FULL §8).
type CycleMetrics struct {
	AvgCost              float64
	TotalSlaSlackMinutes float64
	RiderUtilization     map[string]float64
	AlgorithmUsed        string
}

// AssignmentCycleResult is executeCycle's return value (spec §6).
type AssignmentCycleResult struct {
	CycleID      string
	Timestamp    time.Time
	Decisions    []AssignmentDecision
	SuccessCount int
	FailureCount int
	Metrics      CycleMetrics
}

// ReassignmentStats aggregates reassignment activity across the engine's
// lifetime, surfaced via GetMetrics.
type ReassignmentStats struct {
	TotalTriggersDetected int
	TotalApplied          int
	ByTriggerKind         map[string]int
}

// EngineMetrics is getMetrics()'s return value (spec §6).
type EngineMetrics struct {
	CycleCount        int
	LastCycle         *AssignmentCycleResult
	SurgeState        domain.SurgeState
	ReassignmentStats ReassignmentStats
	TotalAssignments  int
	ETACacheStats     eta.CacheStats
}

// AssignmentEngineState is getState()'s return value (spec §6) — a
// read-only snapshot of live entities.
type AssignmentEngineState struct {
	Orders      map[string]*domain.Order
	Riders      map[string]*domain.Rider
	Assignments map[string]*domain.Assignment
}

// Engine is the dispatch assignment cycle orchestrator.
type Engine struct {
	stateMu sync.Mutex
	orders  map[string]*domain.Order
	riders  map[string]*domain.Rider

	assignmentsMu sync.Mutex
	assignments   map[string]*domain.Assignment

	cycleMu sync.Mutex // enforces a single in-flight executeCycle (spec §5)

	cfg config.Config

	etaModel       *eta.Model
	candidateGen   *candidate.Generator
	batchOptimizer *batch.Optimizer
	surgeDetector  *surge.Detector

	msgClient    *messaging.Client
	checkpointer checkpoint.Checkpointer
	logger       *log.Logger

	historyMu     sync.Mutex
	cycleCounter  int
	cycleHistory  []AssignmentCycleResult
	lastSurge     domain.SurgeState
	reassignStats ReassignmentStats

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithMessagingClient attaches a NATS client the engine publishes
// cycle-lifecycle events to. Nil-safe if never set.
func WithMessagingClient(client *messaging.Client) Option {
	return func(e *Engine) { e.msgClient = client }
}

// WithCheckpointer attaches a crash-recovery checkpoint writer. Defaults
// to checkpoint.NoopCheckpointer.
func WithCheckpointer(c checkpoint.Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// WithLogger overrides the default log.Default() logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithETAModel overrides the default ETA model (e.g. to attach a traffic
// provider built with its own circuit breaker).
func WithETAModel(model *eta.Model) Option {
	return func(e *Engine) { e.etaModel = model }
}

// NewEngine builds an orchestrator from validated configuration.
func NewEngine(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		orders:         make(map[string]*domain.Order),
		riders:         make(map[string]*domain.Rider),
		assignments:    make(map[string]*domain.Assignment),
		cfg:            cfg,
		etaModel:       eta.NewModel(cfg.ETA),
		candidateGen:   candidate.NewGenerator(cfg.Radii, cfg.Fatigue),
		batchOptimizer: batch.NewOptimizer(cfg.Batch, cfg.TwoOptIterationLimit),
		surgeDetector:  surge.NewDetector(cfg.Surge),
		checkpointer:   checkpoint.NoopCheckpointer{},
		logger:         log.Default(),
		shutdown:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateState replaces the engine's view of live orders and riders (spec
// §4.9 "updateState"). Callers own the snapshot's lifecycle; the engine
// keeps the references directly, matching a single-process, single-writer
// model (spec §5).
func (e *Engine) UpdateState(orders map[string]*domain.Order, riders map[string]*domain.Rider) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.orders = orders
	e.riders = riders
}

// GetState returns the engine's current live state (spec §4.9 "getState").
func (e *Engine) GetState() AssignmentEngineState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.assignmentsMu.Lock()
	defer e.assignmentsMu.Unlock()
	return AssignmentEngineState{Orders: e.orders, Riders: e.riders, Assignments: e.assignments}
}

// GetMetrics returns the engine's aggregate metrics (spec §4.9 "getMetrics").
func (e *Engine) GetMetrics() EngineMetrics {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	var last *AssignmentCycleResult
	if len(e.cycleHistory) > 0 {
		copyOf := e.cycleHistory[len(e.cycleHistory)-1]
		last = &copyOf
	}

	e.assignmentsMu.Lock()
	total := len(e.assignments)
	e.assignmentsMu.Unlock()

	return EngineMetrics{
		CycleCount:        e.cycleCounter,
		LastCycle:         last,
		SurgeState:        e.lastSurge,
		ReassignmentStats: e.reassignStats,
		TotalAssignments:  total,
		ETACacheStats:     e.etaModel.GetCacheStats(context.Background()),
	}
}

// Snapshot returns a read-only deep-ish copy of engine state, beyond
// GetState's direct map references (SPEC_FULL §8 — grounded on
// matching.Engine.GetStats()).
func (e *Engine) Snapshot() AssignmentEngineState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.assignmentsMu.Lock()
	defer e.assignmentsMu.Unlock()

	orders := make(map[string]*domain.Order, len(e.orders))
	for id, o := range e.orders {
		clone := *o
		orders[id] = &clone
	}
	riders := make(map[string]*domain.Rider, len(e.riders))
	for id, r := range e.riders {
		clone := *r
		riders[id] = &clone
	}
	assignments := make(map[string]*domain.Assignment, len(e.assignments))
	for id, a := range e.assignments {
		clone := *a
		assignments[id] = &clone
	}
	return AssignmentEngineState{Orders: orders, Riders: riders, Assignments: assignments}
}

// ExecuteCycle runs one assignment cycle end to end (spec §4.9).
func (e *Engine) ExecuteCycle(ctx context.Context) (AssignmentCycleResult, error) {
	if !e.cycleMu.TryLock() {
		return AssignmentCycleResult{}, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	now := time.Now()

	e.historyMu.Lock()
	e.cycleCounter++
	counter := e.cycleCounter
	e.historyMu.Unlock()
	cycleID := fmt.Sprintf("cycle_%d_%d", now.UnixMilli(), counter)

	e.stateMu.Lock()
	pendingOrders := selectPendingOrders(e.orders)
	ridersSnapshot := e.riders
	e.stateMu.Unlock()

	availableRiders := countEligibleRiders(ridersSnapshot)
	capacity := surge.ActiveBatchCapacity(ridersSnapshot)
	surgeState := e.surgeDetector.DetectSurge(len(pendingOrders), availableRiders, capacity)
	e.publishSurgeChange(ctx, surgeState)
	e.historyMu.Lock()
	e.lastSurge = surgeState
	e.historyMu.Unlock()

	result := AssignmentCycleResult{CycleID: cycleID, Timestamp: now, Metrics: CycleMetrics{RiderUtilization: map[string]float64{}}}

	if len(pendingOrders) == 0 {
		e.recordCycle(ctx, result)
		return result, nil
	}

	weights := surge.ApplyWeightModifiers(surgeState.Level, e.cfg.Weights)
	scorer := scoring.NewScorer(weights, e.cfg.SLA, e.etaModel)

	candidates := e.generateCandidates(ctx, pendingOrders, ridersSnapshot, now)
	pairCosts := e.scorePairs(ctx, scorer, pendingOrders, ridersSnapshot, candidates, now)

	matrix, breakdowns := buildMatrix(pendingOrders, pairCosts)

	var optResult optimizer.Result
	if surgeState.Level == domain.SurgeCrisis {
		optResult = optimizer.SolveGreedy(matrix)
	} else {
		optResult = optimizer.Solve(matrix, optimizer.Config{
			HungarianThreshold:      e.cfg.HungarianThreshold,
			OptimizerTimeoutSeconds: e.cfg.OptimizerTimeoutSeconds,
		})
	}

	assignedOrderIDs := make(map[string]bool, len(optResult.Decisions))
	for _, decision := range optResult.Decisions {
		order := e.orders[decision.OrderID]
		rider := e.riders[decision.RiderID]
		if order == nil || rider == nil {
			continue
		}
		if err := order.Assign(decision.RiderID); err != nil {
			continue
		}
		seqIndex := rider.AssignOrder(decision.OrderID)
		assignedOrderIDs[order.ID] = true

		breakdown := breakdowns[pairKey(order.ID, rider.ID)]
		assignment := e.recordAssignment(cycleID, order, rider, breakdown, now)

		result.Decisions = append(result.Decisions, AssignmentDecision{
			OrderID: order.ID, RiderID: rider.ID, SequenceIndex: seqIndex,
		})
		result.SuccessCount++
		result.Metrics.TotalSlaSlackMinutes += assignment.SLASlackMinutes
		e.publishAssignmentCreated(ctx, decision.OrderID, decision.RiderID, seqIndex, cycleID)
	}

	for _, order := range pendingOrders {
		if !assignedOrderIDs[order.ID] {
			result.FailureCount++
			e.publishUnassignable(ctx, order.ID, cycleID, candidates[order.ID].FailureReason)
		}
	}

	e.resequenceAffectedRiders(optResult, ridersSnapshot)

	if result.SuccessCount > 0 {
		result.Metrics.AvgCost = optResult.TotalCost / float64(result.SuccessCount)
	}
	result.Metrics.AlgorithmUsed = optResult.Algorithm
	result.Metrics.RiderUtilization = riderUtilization(ridersSnapshot)

	e.runReassignment(ctx, now)

	e.recordCycle(ctx, result)
	return result, nil
}

func selectPendingOrders(orders map[string]*domain.Order) []*domain.Order {
	pending := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == domain.OrderPendingAssignment {
			pending = append(pending, o)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending
}

func countEligibleRiders(riders map[string]*domain.Rider) int {
	count := 0
	for _, r := range riders {
		if r.Status.IsCandidateEligible() {
			count++
		}
	}
	return count
}

// generateCandidates runs C3 per pending order, parallelized via errgroup
// (spec §5 explicitly permits this — "pure and independent given a frozen
// snapshot").
func (e *Engine) generateCandidates(ctx context.Context, orders []*domain.Order, riders map[string]*domain.Rider, now time.Time) map[string]candidate.Result {
	results := make([]candidate.Result, len(orders))
	g, _ := errgroup.WithContext(ctx)
	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			results[i] = e.candidateGen.GenerateCandidates(order, riders, now)
			return nil
		})
	}
	_ = g.Wait()

	byOrder := make(map[string]candidate.Result, len(orders))
	for i, order := range orders {
		byOrder[order.ID] = results[i]
	}
	return byOrder
}

type scoredPair struct {
	orderID   string
	riderID   string
	breakdown domain.CostBreakdown
}

// scorePairs runs C4 over every (order, candidate) pair, parallelized via
// errgroup (spec §5).
func (e *Engine) scorePairs(
	ctx context.Context,
	scorer *scoring.Scorer,
	orders []*domain.Order,
	riders map[string]*domain.Rider,
	candidates map[string]candidate.Result,
	now time.Time,
) []scoredPair {
	type job struct {
		order   *domain.Order
		riderID string
	}
	var jobs []job
	ordersByID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		ordersByID[o.ID] = o
		for _, riderID := range candidates[o.ID].CandidateRiderIDs {
			jobs = append(jobs, job{order: o, riderID: riderID})
		}
	}

	pairs := make([]scoredPair, len(jobs))
	g, _ := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			rider := riders[j.riderID]
			if rider == nil {
				return nil
			}
			pairs[i] = scoredPair{
				orderID:   j.order.ID,
				riderID:   j.riderID,
				breakdown: scorer.ScoreAssignment(j.order, rider, now),
			}
			return nil
		})
	}
	_ = g.Wait()
	return pairs
}

func pairKey(orderID, riderID string) string { return orderID + "\x00" + riderID }

func buildMatrix(orders []*domain.Order, pairs []scoredPair) (optimizer.Matrix, map[string]domain.CostBreakdown) {
	orderIDs := make([]string, len(orders))
	orderIndex := make(map[string]int, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
		orderIndex[o.ID] = i
	}

	riderIndex := make(map[string]int)
	var riderIDs []string
	breakdowns := make(map[string]domain.CostBreakdown, len(pairs))
	for _, p := range pairs {
		if p.orderID == "" {
			continue
		}
		if _, ok := riderIndex[p.riderID]; !ok {
			riderIndex[p.riderID] = len(riderIDs)
			riderIDs = append(riderIDs, p.riderID)
		}
		breakdowns[pairKey(p.orderID, p.riderID)] = p.breakdown
	}

	cost := make([][]float64, len(orderIDs))
	for i := range cost {
		cost[i] = make([]float64, len(riderIDs))
		for j := range cost[i] {
			cost[i][j] = optimizer.SentinelCost
		}
	}
	for _, p := range pairs {
		if p.orderID == "" {
			continue
		}
		i, j := orderIndex[p.orderID], riderIndex[p.riderID]
		cost[i][j] = p.breakdown.Total
	}

	return optimizer.Matrix{OrderIDs: orderIDs, RiderIDs: riderIDs, Cost: cost}, breakdowns
}

func (e *Engine) recordAssignment(cycleID string, order *domain.Order, rider *domain.Rider, breakdown domain.CostBreakdown, now time.Time) *domain.Assignment {
	pickupEstimate := e.etaModel.EstimateETA(context.Background(), rider.Location, order.Pickup.Location, now, rider.ID, "")
	deliveryEstimate := e.etaModel.EstimateETA(context.Background(), order.Pickup.Location, order.Delivery.Location, now, rider.ID, "")
	estimatedPickupAt := now.Add(time.Duration(pickupEstimate.EstimatedDurationMinutes) * time.Minute)
	estimatedDeliveryAt := estimatedPickupAt.Add(time.Duration(deliveryEstimate.EstimatedDurationMinutes) * time.Minute)

	e.assignmentsMu.Lock()
	carryCount := priorReassignmentCount(e.assignments, order.ID)
	e.assignmentsMu.Unlock()

	assignment := &domain.Assignment{
		ID:                  uuid.New().String(),
		OrderID:             order.ID,
		RiderID:             rider.ID,
		AssignedAt:          now,
		CycleID:             cycleID,
		CostBreakdown:       breakdown,
		EstimatedPickupAt:   estimatedPickupAt,
		EstimatedDeliveryAt: estimatedDeliveryAt,
		SLADeadline:         order.SLADeadline,
		SLASlackMinutes:     order.SLADeadline.Sub(estimatedDeliveryAt).Minutes(),
		Status:              domain.AssignmentDispatched,
		ReassignmentCount:   carryCount,
	}

	e.assignmentsMu.Lock()
	e.assignments[assignment.ID] = assignment
	e.assignmentsMu.Unlock()
	return assignment
}

// priorReassignmentCount carries an order's reassignment count forward onto
// its next assignment record, since each (re-)match builds a fresh
// *domain.Assignment with a new id (spec §4.8 "canReassign" reads the live
// assignment's reassignment count, which must survive across rematches for
// the max-attempts cap to mean anything).
func priorReassignmentCount(assignments map[string]*domain.Assignment, orderID string) int {
	var latest *domain.Assignment
	for _, a := range assignments {
		if a.OrderID != orderID {
			continue
		}
		if latest == nil || a.AssignedAt.After(latest.AssignedAt) {
			latest = a
		}
	}
	if latest == nil {
		return 0
	}
	return latest.ReassignmentCount
}

// resequenceAffectedRiders rebuilds each assigned rider's CurrentRoute via
// the batch optimizer, keeping insertion-cost scoring accurate on the next
// cycle (spec §1 — batching is core "because it is coupled to scoring via
// the insertion cost contribution").
func (e *Engine) resequenceAffectedRiders(optResult optimizer.Result, riders map[string]*domain.Rider) {
	affectedRiders := make(map[string]bool)
	for _, d := range optResult.Decisions {
		affectedRiders[d.RiderID] = true
	}
	for riderID := range affectedRiders {
		rider := riders[riderID]
		if rider == nil {
			continue
		}
		orders := make([]*domain.Order, 0, len(rider.CurrentAssignments))
		for _, orderID := range rider.CurrentAssignments {
			if o, ok := e.orders[orderID]; ok {
				orders = append(orders, o)
			}
		}
		result, err := e.batchOptimizer.OptimizeBatch(rider, orders)
		if err != nil {
			continue
		}
		rider.CurrentRoute = result.Stops
	}
}

func riderUtilization(riders map[string]*domain.Rider) map[string]float64 {
	utilization := make(map[string]float64, len(riders))
	for id, r := range riders {
		if r.Vehicle.MaxItems <= 0 {
			utilization[id] = 0
			continue
		}
		utilization[id] = float64(r.Load.ItemCount) / float64(r.Vehicle.MaxItems)
	}
	return utilization
}

func (e *Engine) runReassignment(ctx context.Context, now time.Time) {
	e.assignmentsMu.Lock()
	assignmentsSnapshot := e.assignments
	e.assignmentsMu.Unlock()

	triggers := reassign.DetectTriggers(e.orders, e.riders, assignmentsSnapshot, e.etaModel, e.cfg.Reassignment, now)
	outcomes := reassign.ApplyTriggers(triggers, e.orders, e.riders, assignmentsSnapshot, e.cfg.Reassignment, now)

	e.historyMu.Lock()
	e.reassignStats.TotalTriggersDetected += len(triggers)
	e.reassignStats.TotalApplied += len(outcomes)
	if e.reassignStats.ByTriggerKind == nil {
		e.reassignStats.ByTriggerKind = make(map[string]int)
	}
	for _, o := range outcomes {
		e.reassignStats.ByTriggerKind[o.Trigger]++
	}
	e.historyMu.Unlock()

	for _, o := range outcomes {
		e.publishOrderReassigned(ctx, o)
	}
}

func (e *Engine) recordCycle(ctx context.Context, result AssignmentCycleResult) {
	e.historyMu.Lock()
	e.cycleHistory = append(e.cycleHistory, result)
	e.historyMu.Unlock()

	e.logger.Printf("cycle %s: %d assigned, %d failed, algorithm=%s", result.CycleID, result.SuccessCount, result.FailureCount, result.Metrics.AlgorithmUsed)

	if err := e.checkpointer.SaveCycle(ctx, result.CycleID, result); err != nil {
		e.logger.Printf("checkpoint save failed for cycle %s: %v", result.CycleID, err)
	}
	e.publishCycleCompleted(ctx, result)
}

// Start runs cycles on a fixed tick until Stop is called (spec §4.9 "the
// orchestrator never blocks or sleeps; cadence is the caller's
// responsibility" — Start is an optional convenience wrapper around that
// responsibility, grounded on matching.Engine.Start's ticker/shutdown idiom).
func (e *Engine) Start(ctx context.Context) {
	interval := time.Duration(e.cfg.CycleIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := e.ExecuteCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
					e.logger.Printf("cycle execution failed: %v", err)
				}
			case <-e.shutdown:
				return
			}
		}
	}()
}

// Stop halts the ticker loop started by Start and waits for it to exit.
func (e *Engine) Stop() {
	close(e.shutdown)
	e.wg.Wait()
}
