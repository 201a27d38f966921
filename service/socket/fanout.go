package socket

import (
	"hash/fnv"
	"sync"

	"workchat/logger"
)

type TargetKind int

const (
	TargetUser TargetKind = iota
	TargetRoom
	TargetBroadcast
)

// Target names one delivery group: a user group, a room group, or every
// live connection.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

func UserTarget(userID string) Target { return Target{Kind: TargetUser, ID: userID} }
func RoomTarget(roomID string) Target { return Target{Kind: TargetRoom, ID: roomID} }
func Broadcast() Target               { return Target{Kind: TargetBroadcast} }

type fanoutJob struct {
	event   string
	payload []byte
	targets []Target
}

// Observer sees every locally-originated dispatch; the cluster relay hooks
// in here to mirror events to other instances.
type Observer func(event string, payload []byte, targets []Target)

// Fanout delivers one event to every member of a resolved target set.
// Delivery is best-effort and at-most-once per connection per event: the
// payload is marshalled once, member sets are snapshots, connections are
// deduplicated across targets, and slow or closed clients are skipped.
// Each worker owns its own queue and jobs are routed by target set, so
// consecutive dispatches to the same group reach every member connection
// in dispatch order.
type Fanout struct {
	reg    *Registry
	queues []chan fanoutJob

	mu       sync.RWMutex
	observer Observer

	stopOnce sync.Once
	stop     chan struct{}
}

func NewFanout(reg *Registry, workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}
	f := &Fanout{
		reg:    reg,
		queues: make([]chan fanoutJob, workers),
		stop:   make(chan struct{}),
	}
	for i := range f.queues {
		f.queues[i] = make(chan fanoutJob, queue)
		go f.worker(f.queues[i])
	}
	return f
}

// SetObserver installs the relay hook. Call before traffic starts.
func (f *Fanout) SetObserver(o Observer) {
	f.mu.Lock()
	f.observer = o
	f.mu.Unlock()
}

// Dispatch emits payload under event to each target group.
func (f *Fanout) Dispatch(event string, payload any, targets ...Target) {
	data, err := BuildFrame(event, payload)
	if err != nil {
		logger.Warnf("[fanout] %v", err)
		return
	}
	f.mu.RLock()
	observer := f.observer
	f.mu.RUnlock()
	if observer != nil {
		observer(event, data, targets)
	}
	f.enqueue(event, data, targets)
}

// DispatchLocal delivers an already-framed event to local connections
// only; used by the relay when replaying events from other instances.
func (f *Fanout) DispatchLocal(event string, frame []byte, targets []Target) {
	f.enqueue(event, frame, targets)
}

func (f *Fanout) enqueue(event string, frame []byte, targets []Target) {
	if len(frame) == 0 || len(targets) == 0 {
		return
	}
	select {
	case f.queues[f.shard(targets)] <- fanoutJob{event: event, payload: frame, targets: targets}:
	case <-f.stop:
	}
}

// shard picks the worker that owns this target set. Identical target sets
// always hash to the same worker, which serializes their deliveries.
func (f *Fanout) shard(targets []Target) int {
	h := fnv.New32a()
	for _, t := range targets {
		_, _ = h.Write([]byte{byte(t.Kind)})
		_, _ = h.Write([]byte(t.ID))
	}
	return int(h.Sum32() % uint32(len(f.queues)))
}

func (f *Fanout) Close() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *Fanout) worker(jobs <-chan fanoutJob) {
	for {
		select {
		case <-f.stop:
			return
		case job := <-jobs:
			f.deliver(job)
		}
	}
}

func (f *Fanout) deliver(job fanoutJob) {
	seen := make(map[string]struct{})
	for _, t := range job.targets {
		for _, c := range f.resolve(t) {
			if _, dup := seen[c.ConnID]; dup {
				continue
			}
			seen[c.ConnID] = struct{}{}
			if !c.Enqueue(job.payload) {
				// Slow or closing client: the event is simply missed, the
				// REST layer remains the source of truth.
				logger.Warnf("[fanout] drop event=%q conn=%s", job.event, c.ConnID)
			}
		}
	}
}

func (f *Fanout) resolve(t Target) []*Client {
	switch t.Kind {
	case TargetUser:
		return f.reg.MembersOfUser(t.ID)
	case TargetRoom:
		return f.reg.MembersOfRoom(t.ID)
	case TargetBroadcast:
		return f.reg.All()
	default:
		return nil
	}
}
