package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
)

func batchRider() *domain.Rider {
	return &domain.Rider{
		ID:       "rider-1",
		Location: domain.Location{Lat: 12.97, Lng: 77.59},
		Vehicle:  domain.Vehicle{Type: domain.VehicleBike, MaxWeightKg: 10, MaxVolumeLiters: 10, MaxItems: 10},
	}
}

func batchOrder(id string, pickup, delivery domain.Location) *domain.Order {
	return &domain.Order{
		ID:       id,
		Pickup:   domain.PickupInfo{Location: pickup},
		Delivery: domain.DeliveryInfo{Location: delivery},
		Payload:  domain.Payload{WeightKg: 1, VolumeLiters: 1, ItemCount: 1},
	}
}

func TestOptimizeBatch_RejectsOverMaxBatchSize(t *testing.T) {
	opt := NewOptimizer(config.BatchSizes{Bike: 1, Car: 6, Van: 10}, 100)
	rider := batchRider()
	orders := []*domain.Order{
		batchOrder("o1", domain.Location{Lat: 12.97, Lng: 77.59}, domain.Location{Lat: 12.98, Lng: 77.60}),
		batchOrder("o2", domain.Location{Lat: 12.96, Lng: 77.58}, domain.Location{Lat: 12.99, Lng: 77.61}),
	}

	_, err := opt.OptimizeBatch(rider, orders)
	assert.ErrorIs(t, err, ErrBatchNotFeasible)
}

func TestOptimizeBatch_RejectsOverCapacity(t *testing.T) {
	opt := NewOptimizer(config.BatchSizes{Bike: 5, Car: 6, Van: 10}, 100)
	rider := batchRider()
	rider.Vehicle.MaxWeightKg = 1
	orders := []*domain.Order{
		batchOrder("o1", domain.Location{Lat: 12.97, Lng: 77.59}, domain.Location{Lat: 12.98, Lng: 77.60}),
	}
	orders[0].Payload.WeightKg = 5

	_, err := opt.OptimizeBatch(rider, orders)
	assert.ErrorIs(t, err, ErrBatchNotFeasible)
}

func TestOptimizeBatch_ReturnsPairedStopsInSequence(t *testing.T) {
	opt := NewOptimizer(config.BatchSizes{Bike: 5, Car: 6, Van: 10}, 100)
	rider := batchRider()
	orders := []*domain.Order{
		batchOrder("o1", domain.Location{Lat: 12.971, Lng: 77.591}, domain.Location{Lat: 12.981, Lng: 77.601}),
		batchOrder("o2", domain.Location{Lat: 12.975, Lng: 77.595}, domain.Location{Lat: 12.985, Lng: 77.605}),
	}

	result, err := opt.OptimizeBatch(rider, orders)
	require.NoError(t, err)
	require.Len(t, result.Stops, 4)
	assert.Equal(t, domain.RouteStopPickup, result.Stops[0].Type)
	assert.Equal(t, domain.RouteStopDelivery, result.Stops[1].Type)
	assert.Equal(t, domain.RouteStopPickup, result.Stops[2].Type)
	assert.Equal(t, domain.RouteStopDelivery, result.Stops[3].Type)

	// pickup precedes its own delivery in sequence
	seenPickup := make(map[string]bool)
	for _, stop := range result.Stops {
		if stop.Type == domain.RouteStopPickup {
			seenPickup[stop.OrderID] = true
		} else {
			assert.True(t, seenPickup[stop.OrderID], "delivery for %s must follow its pickup", stop.OrderID)
		}
	}
}

func TestOptimizeBatch_EmptyOrdersYieldsEmptyResult(t *testing.T) {
	opt := NewOptimizer(config.BatchSizes{Bike: 5, Car: 6, Van: 10}, 100)
	result, err := opt.OptimizeBatch(batchRider(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Stops)
}

func TestOptimizeBatch_RespectsTwoOptIterationLimit(t *testing.T) {
	opt := NewOptimizer(config.BatchSizes{Bike: 10, Car: 10, Van: 10}, 1)
	rider := batchRider()
	orders := []*domain.Order{
		batchOrder("o1", domain.Location{Lat: 12.97, Lng: 77.59}, domain.Location{Lat: 12.98, Lng: 77.60}),
		batchOrder("o2", domain.Location{Lat: 13.10, Lng: 77.70}, domain.Location{Lat: 13.11, Lng: 77.71}),
		batchOrder("o3", domain.Location{Lat: 12.50, Lng: 77.20}, domain.Location{Lat: 12.51, Lng: 77.21}),
	}

	result, err := opt.OptimizeBatch(rider, orders)
	require.NoError(t, err)
	assert.Len(t, result.OrdersSequence, 3)
}
