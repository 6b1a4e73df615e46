// Package domain holds the plain data types shared by every engine
// component: orders, riders, assignments, surge state. Nothing in this
// package owns a mutex or performs I/O — the engine package is the sole
// owner of mutable state built from these types (spec §3 "Ownership").
package domain

import (
	"errors"
	"time"
)

// Sentinel errors for state-transition misuse. Grounded on the teacher's
// internal/orders/service.go package-level error vars.
var (
	ErrOrderNotPending  = errors.New("order is not pending_assignment")
	ErrOrderNotAssigned = errors.New("order is not assigned")
	ErrRiderNotFound    = errors.New("rider not found")
	ErrOrderNotFound    = errors.New("order not found")
)

// Location is a point in decimal degrees.
type Location struct {
	Lat float64
	Lng float64
}

// OrderStatus is the order lifecycle state (spec §3).
type OrderStatus string

const (
	OrderPendingAssignment OrderStatus = "pending_assignment"
	OrderAssigned          OrderStatus = "assigned"
	OrderPickedUp          OrderStatus = "picked_up"
	OrderDelivered         OrderStatus = "delivered"
	OrderCancelled         OrderStatus = "cancelled"
)

// Priority is the order priority class.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// VehicleRequirement constrains which rider vehicles may carry an order.
type VehicleRequirement string

const (
	VehicleRequirementAny          VehicleRequirement = "any"
	VehicleRequirementBike         VehicleRequirement = "bike"
	VehicleRequirementCar          VehicleRequirement = "car"
	VehicleRequirementVan          VehicleRequirement = "van"
	VehicleRequirementRefrigerated VehicleRequirement = "refrigerated"
)

// TimeWindow is an optional open/close or preferred delivery window.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// PickupInfo describes where and how an order is picked up.
type PickupInfo struct {
	Location                   Location
	Address                    string
	StoreID                    string
	EstimatedPickupWaitMinutes int
	Window                     *TimeWindow
}

// DeliveryInfo describes where an order is delivered.
type DeliveryInfo struct {
	Location Location
	Address  string
	CustomerID string
	Window   *TimeWindow
}

// Payload describes the physical load an order places on a rider.
type Payload struct {
	WeightKg           float64
	VolumeLiters       float64
	ItemCount          int
	RequiresColdChain  bool
	Fragile            bool
	VehicleRequirement VehicleRequirement
}

// Order is a single delivery order (spec §3).
type Order struct {
	ID                 string
	Status             OrderStatus
	CreatedAt          time.Time
	SLADeadline        time.Time
	Pickup             PickupInfo
	Delivery           DeliveryInfo
	Payload            Payload
	Priority           Priority
	AssignmentAttempts int
	AssignedRiderID    string
}

// SLAMinutesRemaining returns the minutes between now and the SLA
// deadline; negative once the deadline has passed.
func (o *Order) SLAMinutesRemaining(now time.Time) float64 {
	return o.SLADeadline.Sub(now).Minutes()
}

// Assign transitions the order from pending_assignment to assigned,
// mirroring the orchestrator's step 7 (spec §4.9).
func (o *Order) Assign(riderID string) error {
	if o.Status != OrderPendingAssignment {
		return ErrOrderNotPending
	}
	o.Status = OrderAssigned
	o.AssignedRiderID = riderID
	o.AssignmentAttempts++
	return nil
}

// ReleaseForReassignment transitions an assigned order back to
// pending_assignment, clearing its rider (spec §4.8).
func (o *Order) ReleaseForReassignment() error {
	if o.Status != OrderAssigned {
		return ErrOrderNotAssigned
	}
	o.Status = OrderPendingAssignment
	o.AssignedRiderID = ""
	return nil
}

// RiderStatus is the rider's current duty state.
type RiderStatus string

const (
	RiderActive     RiderStatus = "active"
	RiderOnDelivery RiderStatus = "on_delivery"
	RiderBreak      RiderStatus = "break"
	RiderOffline    RiderStatus = "offline"
)

// IsCandidateEligible reports whether the rider's status alone permits
// candidacy (spec §4.3 check 6, "rider_offline_or_unavailable").
func (s RiderStatus) IsCandidateEligible() bool {
	return s == RiderActive || s == RiderOnDelivery
}

// VehicleType is the physical vehicle class.
type VehicleType string

const (
	VehicleBike VehicleType = "bike"
	VehicleCar  VehicleType = "car"
	VehicleVan  VehicleType = "van"
)

// Capability is a special handling capability a vehicle/rider offers.
type Capability string

const (
	CapabilityStandard  Capability = "standard"
	CapabilityFragile   Capability = "fragile"
	CapabilityColdChain Capability = "cold_chain"
)

// Vehicle describes a rider's vehicle capacity and capabilities.
type Vehicle struct {
	Type             VehicleType
	MaxWeightKg      float64
	MaxVolumeLiters  float64
	MaxItems         int
	Capabilities     map[Capability]bool
}

// HasCapability reports whether the vehicle carries a capability.
func (v Vehicle) HasCapability(c Capability) bool {
	return v.Capabilities[c]
}

// Shift tracks a rider's scheduled hours and accumulated driving time.
type Shift struct {
	StartTime                 time.Time
	EndTime                   time.Time
	ContinuousDrivingMinutes  int
	TotalShiftDrivingMinutes  int
}

// Load is the rider's currently carried payload.
type Load struct {
	WeightKg     float64
	VolumeLiters float64
	ItemCount    int
}

// Performance holds a rider's historical scoring inputs.
type Performance struct {
	ZoneFamiliarityScores map[string]float64
	AvgDeliverySuccessRate float64
	AvgSpeedMultiplier    float64
	TotalDeliveries       int
}

// RouteStopType distinguishes a pickup stop from a delivery stop.
type RouteStopType string

const (
	RouteStopPickup   RouteStopType = "pickup"
	RouteStopDelivery RouteStopType = "delivery"
)

// RouteStop is one stop in a rider's ordered route.
type RouteStop struct {
	Type               RouteStopType
	OrderID            string
	Location           Location
	SequenceIndex      int
	EstimatedArrival   *time.Time
	EstimatedDeparture *time.Time
}

// Rider is a delivery rider available for assignment (spec §3).
type Rider struct {
	ID                 string
	Status             RiderStatus
	Location           Location
	Vehicle            Vehicle
	Shift              Shift
	Load               Load
	Performance        Performance
	CurrentAssignments []string
	CurrentRoute       []RouteStop
}

// RemainingWeightKg is capacity left before the vehicle limit.
func (r *Rider) RemainingWeightKg() float64 { return r.Vehicle.MaxWeightKg - r.Load.WeightKg }

// RemainingVolumeLiters is capacity left before the vehicle limit.
func (r *Rider) RemainingVolumeLiters() float64 {
	return r.Vehicle.MaxVolumeLiters - r.Load.VolumeLiters
}

// RemainingItems is capacity left before the vehicle limit.
func (r *Rider) RemainingItems() int { return r.Vehicle.MaxItems - r.Load.ItemCount }

// AssignOrder appends orderID to the rider's assignment sequence and
// returns the stop's sequenceIndex (its position at the moment of
// appending, per spec §4.9 step 7).
func (r *Rider) AssignOrder(orderID string) int {
	r.CurrentAssignments = append(r.CurrentAssignments, orderID)
	return len(r.CurrentAssignments) - 1
}

// AssignmentStatus is the lifecycle state of a dispatched assignment.
type AssignmentStatus string

const (
	AssignmentDispatched AssignmentStatus = "dispatched"
	AssignmentAccepted   AssignmentStatus = "accepted"
	AssignmentRejected   AssignmentStatus = "rejected"
	AssignmentReassigned AssignmentStatus = "reassigned"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// CostBreakdown is the per-factor scorer output (spec §4.4).
type CostBreakdown struct {
	TimeCost            float64
	SLARiskCost         float64
	DistanceCost        float64
	BatchDisruptionCost float64
	WorkloadCost        float64
	AffinityCost        float64
	Total               float64
}

// Assignment is one live order-to-rider binding (spec §3).
type Assignment struct {
	ID                  string
	OrderID             string
	RiderID             string
	AssignedAt          time.Time
	CycleID             string
	CostBreakdown       CostBreakdown
	EstimatedPickupAt   time.Time
	EstimatedDeliveryAt time.Time
	SLADeadline         time.Time
	SLASlackMinutes     float64
	ReassignmentCount   int
	LastReassignedAt    time.Time
	Status              AssignmentStatus
}

// SurgeLevel classifies demand pressure relative to supply (spec §4.7).
type SurgeLevel string

const (
	SurgeNormal SurgeLevel = "normal"
	SurgeSoft   SurgeLevel = "soft_surge"
	SurgeHard   SurgeLevel = "hard_surge"
	SurgeCrisis SurgeLevel = "crisis"
)

// SurgeState is the result of one surge classification (spec §3).
type SurgeState struct {
	Level               SurgeLevel
	DemandSupplyRatio   float64
	PendingOrderCount   int
	AvailableCapacity   int
	RecommendedActions  []string
}

// Recommended-action tokens (spec §6), stable opaque strings.
const (
	ActionIncreaseBatchSizesBy1      = "increase_batch_sizes_by_1"
	ActionExpandCandidateRadius50Pct = "expand_candidate_radius_50pct"
	ActionReduceFairnessWeight       = "reduce_fairness_weight"
	ActionEnablePrepositioning       = "enable_preposioning"
	ActionHoldSLAOrders              = "hold_sla_orders"
	ActionIncreaseBatchSizes         = "increase_batch_sizes"
	ActionExpandSearchRadius         = "expand_search_radius"
	ActionEscalateSLAWindows         = "escalate_sla_windows"
	ActionNotifyCustomers            = "notify_customers"
	ActionActivateEmergencyProtocol  = "activate_emergency_protocol"
	ActionRequestAdditionalSupply    = "request_additional_supply"
)
