// Package checkpoint offers a one-way write path for crash-recovery data
// (completed cycle history, reassignment counters). Spec.md §6 permits
// but does not require this; the engine's behavior MUST be identical with
// the checkpointer absent, so every implementation here is nil-safe and
// nothing the engine does ever reads a checkpoint back. Grounded on
// pkg/cache.RedisStore's nil-receiver-safe degradation pattern, adapted to
// etcd's clientv3.
package checkpoint

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Checkpointer persists completed-cycle and reassignment state for
// external crash-recovery tooling. It is never consulted by the engine
// itself.
type Checkpointer interface {
	SaveCycle(ctx context.Context, cycleID string, payload interface{}) error
	SaveReassignmentCounters(ctx context.Context, payload interface{}) error
}

// NoopCheckpointer discards everything; the default when no store is
// configured.
type NoopCheckpointer struct{}

// SaveCycle does nothing.
func (NoopCheckpointer) SaveCycle(ctx context.Context, cycleID string, payload interface{}) error {
	return nil
}

// SaveReassignmentCounters does nothing.
func (NoopCheckpointer) SaveReassignmentCounters(ctx context.Context, payload interface{}) error {
	return nil
}

// EtcdCheckpointer writes cycle and reassignment snapshots to etcd under a
// fixed key prefix. A nil client (or nil *EtcdCheckpointer) degrades to a
// no-op, mirroring pkg/cache.RedisStore.
type EtcdCheckpointer struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdCheckpointer builds a checkpointer writing under prefix.
func NewEtcdCheckpointer(client *clientv3.Client, prefix string) *EtcdCheckpointer {
	return &EtcdCheckpointer{client: client, prefix: prefix}
}

// SaveCycle writes one completed cycle's payload under
// "{prefix}/cycles/{cycleID}".
func (c *EtcdCheckpointer) SaveCycle(ctx context.Context, cycleID string, payload interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Put(ctx, c.prefix+"/cycles/"+cycleID, string(data))
	return err
}

// SaveReassignmentCounters writes the current reassignment counters under
// "{prefix}/reassignment_counters", overwriting the previous snapshot.
func (c *EtcdCheckpointer) SaveReassignmentCounters(ctx context.Context, payload interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.client.Put(ctx, c.prefix+"/reassignment_counters", string(data))
	return err
}
