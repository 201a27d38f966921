package cluster

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"workchat/logger"
	"workchat/service/socket"
)

const defaultSubject = "workchat.fanout"

// Envelope is the JSON frame relayed between instances: the origin node,
// the already-framed event bytes, and the resolved target set. Each
// instance replays foreign envelopes into its local fan-out; group
// membership stays node-local.
type Envelope struct {
	Node    string          `json:"node"`
	Event   string          `json:"event"`
	Frame   json.RawMessage `json:"frame"`
	Targets []socket.Target `json:"targets"`
}

// Config for the relay connection.
type Config struct {
	URL     string
	Subject string
	NodeID  string
}

// Relay mirrors locally-dispatched events to every other instance over
// NATS. It is the external pub/sub layer a multi-instance deployment
// needs; a single-instance deployment runs without it.
type Relay struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	nodeID  string
	fan     *socket.Fanout
}

func NewRelay(cfg Config, fan *socket.Fanout) (*Relay, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("workchat-"+cfg.NodeID),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &Relay{nc: nc, subject: cfg.Subject, nodeID: cfg.NodeID, fan: fan}, nil
}

// Start hooks the relay into the fan-out and subscribes for foreign
// events. Call once before traffic starts.
func (r *Relay) Start() error {
	r.fan.SetObserver(r.publish)
	sub, err := r.nc.Subscribe(r.subject, r.onMsg)
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	r.sub = sub
	logger.Infof("[relay] node=%s subject=%s up", r.nodeID, r.subject)
	return nil
}

func (r *Relay) publish(event string, frame []byte, targets []socket.Target) {
	env := Envelope{Node: r.nodeID, Event: event, Frame: frame, Targets: targets}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Warnf("[relay] marshal envelope event=%q: %v", event, err)
		return
	}
	if err := r.nc.Publish(r.subject, data); err != nil {
		// Best-effort like the rest of the delivery path.
		logger.Warnf("[relay] publish event=%q: %v", event, err)
	}
}

func (r *Relay) onMsg(m *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		logger.Warnf("[relay] bad envelope: %v", err)
		return
	}
	if env.Node == r.nodeID {
		return
	}
	r.fan.DispatchLocal(env.Event, env.Frame, env.Targets)
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Close()
	}
}
