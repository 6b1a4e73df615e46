package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopCheckpointer_AlwaysSucceeds(t *testing.T) {
	var c NoopCheckpointer
	assert.NoError(t, c.SaveCycle(context.Background(), "cycle-1", map[string]int{"x": 1}))
	assert.NoError(t, c.SaveReassignmentCounters(context.Background(), map[string]int{"y": 2}))
}

func TestNilEtcdCheckpointer_IsNoopSafe(t *testing.T) {
	var c *EtcdCheckpointer
	assert.NoError(t, c.SaveCycle(context.Background(), "cycle-1", map[string]int{"x": 1}))
	assert.NoError(t, c.SaveReassignmentCounters(context.Background(), map[string]int{"y": 2}))
}

func TestEtcdCheckpointer_UnconfiguredClientIsNoopSafe(t *testing.T) {
	c := NewEtcdCheckpointer(nil, "dispatch")
	assert.NoError(t, c.SaveCycle(context.Background(), "cycle-1", map[string]int{"x": 1}))
}
