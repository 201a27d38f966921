package watcher

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"workchat/logger"
	"workchat/model"
	"workchat/service/socket"
	"workchat/tools/safe"
)

// Emitter is where resolved events go; the fan-out dispatcher implements
// it.
type Emitter interface {
	Dispatch(event string, payload any, targets ...socket.Target)
}

// Lookup serves the auxiliary reads target resolution needs.
type Lookup interface {
	ChatByID(ctx context.Context, id primitive.ObjectID) (*model.Chat, error)
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]model.User, error)
}

// streams opens one change cursor per collection. The mongo implementation
// wraps Collection.Watch; tests substitute scripted sources.
type streams interface {
	Open(ctx context.Context, collection string) (changeCursor, error)
}

type changeCursor interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context)
}

type mongoStreams struct {
	db *mongo.Database
}

func (m mongoStreams) Open(ctx context.Context, collection string) (changeCursor, error) {
	cs, err := m.db.Collection(collection).Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}
	return mongoCursor{cs: cs}, nil
}

type mongoCursor struct {
	cs *mongo.ChangeStream
}

func (c mongoCursor) Next(ctx context.Context) bool { return c.cs.Next(ctx) }
func (c mongoCursor) Current() bson.Raw             { return c.cs.Current }
func (c mongoCursor) Err() error                    { return c.cs.Err() }
func (c mongoCursor) Close(ctx context.Context)     { _ = c.cs.Close(ctx) }

// Watcher consumes the per-collection change feeds of the store and pushes
// each mutation to the affected connection groups. Delivery is best-effort:
// no resume tokens are persisted, a dropped subscription is reopened fresh
// and the gap is accepted.
type Watcher struct {
	src   streams
	store Lookup
	out   Emitter

	retryMin time.Duration
	retryMax time.Duration
}

func New(db *mongo.Database, store Lookup, out Emitter) *Watcher {
	return newWatcher(mongoStreams{db: db}, store, out)
}

func newWatcher(src streams, store Lookup, out Emitter) *Watcher {
	return &Watcher{
		src:      src,
		store:    store,
		out:      out,
		retryMin: time.Second,
		retryMax: 5 * time.Second,
	}
}

// Run starts one watch loop per collection and returns immediately. The
// loops stop when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for _, coll := range []string{model.CollChats, model.CollMessages, model.CollUsers} {
		coll := coll
		safe.Go("watch-"+coll, func() { w.watchLoop(ctx, coll) })
	}
}

// watchLoop keeps a change-stream subscription alive for one collection,
// reopening with backoff after errors. Events within the collection are
// processed in emission order on this single goroutine.
func (w *Watcher) watchLoop(ctx context.Context, collection string) {
	retry := w.retryMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := w.consume(ctx, collection)
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("[watcher] %s stream closed: %v, resubscribe in %v", collection, err, retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
		if retry < w.retryMax {
			retry *= 2
		}
	}
}

func (w *Watcher) consume(ctx context.Context, collection string) error {
	cur, err := w.src.Open(ctx, collection)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	logger.Infof("[watcher] %s stream open", collection)
	for cur.Next(ctx) {
		ev, derr := decodeChange(collection, cur.Current())
		if derr != nil {
			logger.Warnf("[watcher] %s decode: %v", collection, derr)
			continue
		}
		if ev == nil {
			continue
		}
		w.Handle(ctx, ev)
	}
	return cur.Err()
}
