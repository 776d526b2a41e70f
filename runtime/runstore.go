package runtime

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/checkpoint/store"
	"github.com/warriorguo/checkpoint/types"
	"github.com/warriorguo/checkpoint/utils"
)

const (
	EventPath = "/event/"
)

const lockStripes = 64

/**
 * runStore persists events keyed by (flow, runID, nodeID) on the byte
 * store. Striped mutexes make the record, resolve, evaluate, save
 * sequence atomic per key: a racing re-ensure of the same node ends
 * with exactly one full payload, never a merge of two.
 */
type runStore struct {
	store store.Store

	locks [lockStripes]sync.Mutex
}

func newRunStore(s store.Store) *runStore {
	return &runStore{store: s}
}

func eventPath(flow, runID string) string {
	return EventPath + flow + "/" + runID
}

func (rs *runStore) lockFor(flow, runID, nodeID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(flow))
	h.Write([]byte{0})
	h.Write([]byte(runID))
	h.Write([]byte{0})
	h.Write([]byte(nodeID))
	return &rs.locks[h.Sum32()%lockStripes]
}

/**
 * update runs fn while holding the event's key lock. fn receives the
 * previous event, nil when the node has no recorded event in the run.
 */
func (rs *runStore) update(ctx context.Context, flow, runID, nodeID string, fn func(prev *types.Event) error) error {
	mu := rs.lockFor(flow, runID, nodeID)
	mu.Lock()
	defer mu.Unlock()

	prev, err := rs.load(ctx, flow, runID, nodeID)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(fn(prev))
}

func (rs *runStore) put(ctx context.Context, ev *types.Event) error {
	b, err := utils.Serialize(ev)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(rs.store.Set(ctx, eventPath(ev.Flow, ev.RunID), ev.NodeID, b))
}

// load returns nil, nil when the node has no recorded event in the run.
func (rs *runStore) load(ctx context.Context, flow, runID, nodeID string) (*types.Event, error) {
	b, err := rs.store.Get(ctx, eventPath(flow, runID), nodeID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}
	ev := &types.Event{}
	if err := utils.Unserialize(b, ev); err != nil {
		return nil, errors.Trace(err)
	}
	return ev, nil
}

func (rs *runStore) allForRun(ctx context.Context, flow, runID string) (map[string]*types.Event, error) {
	events := make(map[string]*types.Event)
	path := eventPath(flow, runID)
	err := rs.store.List(ctx, path, func(nodeID string) bool {
		ev, err := rs.load(ctx, flow, runID, nodeID)
		if err != nil {
			log.Errorf("load %s %s from store failed: %v", path, nodeID, err)
			return true
		}
		if ev != nil {
			events[nodeID] = ev
		}
		return true
	})
	return events, errors.Trace(err)
}
