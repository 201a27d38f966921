package cluster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"workchat/service/socket"
)

func envelopeMsg(t *testing.T, env Envelope) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &nats.Msg{Data: data}
}

func TestForeignEnvelopeReplaysLocally(t *testing.T) {
	reg := socket.NewRegistry()
	fan := socket.NewFanout(reg, 1, 16)
	defer fan.Close()

	c := socket.NewClient("c1", nil, 8)
	reg.Register(c)
	if err := reg.BindUser("c1", "u1"); err != nil {
		t.Fatalf("BindUser: %v", err)
	}

	r := &Relay{nodeID: "n1", fan: fan}
	frame, err := socket.BuildFrame(socket.EventChatsChange, map[string]string{"_id": "x"})
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	r.onMsg(envelopeMsg(t, Envelope{
		Node: "n2", Event: socket.EventChatsChange, Frame: frame,
		Targets: []socket.Target{socket.UserTarget("u1")},
	}))

	select {
	case data := <-c.Send:
		f, perr := socket.ParseFrame(data)
		if perr != nil || f.Event != socket.EventChatsChange {
			t.Fatalf("delivered frame = %s err=%v", data, perr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("foreign envelope was not replayed")
	}
}

func TestOwnEnvelopeIsIgnored(t *testing.T) {
	reg := socket.NewRegistry()
	fan := socket.NewFanout(reg, 1, 16)
	defer fan.Close()

	c := socket.NewClient("c1", nil, 8)
	reg.Register(c)

	r := &Relay{nodeID: "n1", fan: fan}
	frame, _ := socket.BuildFrame(socket.EventUsersChange, nil)
	r.onMsg(envelopeMsg(t, Envelope{
		Node: "n1", Event: socket.EventUsersChange, Frame: frame,
		Targets: []socket.Target{socket.Broadcast()},
	}))

	select {
	case data := <-c.Send:
		t.Fatalf("own envelope must not loop back, got %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}
