package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"workchat/model"
	"workchat/service/socket"
)

type scriptedCursor struct {
	docs []bson.Raw
	i    int
	err  error
}

func (c *scriptedCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.i >= len(c.docs) {
		return false
	}
	c.i++
	return true
}

func (c *scriptedCursor) Current() bson.Raw         { return c.docs[c.i-1] }
func (c *scriptedCursor) Err() error                { return c.err }
func (c *scriptedCursor) Close(ctx context.Context) {}

// scriptedStreams replays one scripted outcome per Open call; once the
// script runs out every further open fails.
type scriptedStreams struct {
	mu     sync.Mutex
	script []func() (changeCursor, error)
	opens  int
}

func (s *scriptedStreams) Open(ctx context.Context, collection string) (changeCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.opens
	s.opens++
	if i < len(s.script) {
		return s.script[i]()
	}
	return nil, errors.New("feed unavailable")
}

func (s *scriptedStreams) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func TestWatchLoopResubscribesAfterErrors(t *testing.T) {
	uid := primitive.NewObjectID()
	doc := changeDoc(t, "insert", uid, model.User{ID: uid, Name: "Ann"})

	// first open fails outright, the second cursor dies before yielding,
	// only the third subscription carries the event
	src := &scriptedStreams{script: []func() (changeCursor, error){
		func() (changeCursor, error) { return nil, errors.New("feed unavailable") },
		func() (changeCursor, error) { return &scriptedCursor{err: errors.New("cursor lost")}, nil },
		func() (changeCursor, error) { return &scriptedCursor{docs: []bson.Raw{doc}}, nil },
	}}

	out := &captureEmitter{}
	w := newWatcher(src, &fakeStore{}, out)
	w.retryMin, w.retryMax = time.Millisecond, 4*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.watchLoop(ctx, model.CollUsers)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(out.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	calls := out.all()
	if len(calls) == 0 {
		t.Fatal("no event delivered after resubscribe")
	}
	if calls[0].event != socket.EventUsersChange {
		t.Fatalf("event = %q, want %q", calls[0].event, socket.EventUsersChange)
	}
	if n := src.openCount(); n < 3 {
		t.Fatalf("opens = %d, want at least 3", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop on cancel")
	}
}

func TestWatchLoopStopsWhenContextAlreadyCancelled(t *testing.T) {
	src := &scriptedStreams{}
	w := newWatcher(src, &fakeStore{}, &captureEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.watchLoop(ctx, model.CollUsers)

	if n := src.openCount(); n != 0 {
		t.Fatalf("opens = %d, want 0", n)
	}
}
