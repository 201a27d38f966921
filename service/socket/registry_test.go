package socket

import (
	"errors"
	"testing"
)

func newConn(id string) *Client {
	return NewClient(id, nil, 8)
}

func TestBindUserIdempotentAndRejectsRebind(t *testing.T) {
	r := NewRegistry()
	c := newConn("c1")
	r.Register(c)

	if err := r.BindUser("c1", "u1"); err != nil {
		t.Fatalf("BindUser failed: %v", err)
	}
	if err := r.BindUser("c1", "u1"); err != nil {
		t.Fatalf("identical rebind should be a no-op, got: %v", err)
	}
	if err := r.BindUser("c1", "u2"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got: %v", err)
	}
	if got := r.UserOf("c1"); got != "u1" {
		t.Fatalf("UserOf = %q, want u1", got)
	}
	if n := len(r.MembersOfUser("u1")); n != 1 {
		t.Fatalf("user group size = %d, want 1", n)
	}
	if n := len(r.MembersOfUser("u2")); n != 0 {
		t.Fatalf("rejected bind leaked into user group u2: %d members", n)
	}
}

func TestBindUserUnknownConn(t *testing.T) {
	r := NewRegistry()
	if err := r.BindUser("nope", "u1"); err == nil {
		t.Fatal("expected error for unknown connection")
	}
}

func TestJoinLeaveRoomIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newConn("c1")
	r.Register(c)

	r.JoinRoom("c1", "r1")
	r.JoinRoom("c1", "r1")
	if n := len(r.MembersOfRoom("r1")); n != 1 {
		t.Fatalf("room size after double join = %d, want 1", n)
	}

	r.LeaveRoom("c1", "r1")
	r.LeaveRoom("c1", "r1")
	if n := len(r.MembersOfRoom("r1")); n != 0 {
		t.Fatalf("room size after double leave = %d, want 0", n)
	}
	// leaving a room never joined is a no-op too
	r.LeaveRoom("c1", "never")
}

func TestMembersOfMissingGroupIsEmptyNotError(t *testing.T) {
	r := NewRegistry()
	if got := r.MembersOfUser("ghost"); len(got) != 0 {
		t.Fatalf("expected empty set, got %d", len(got))
	}
	if got := r.MembersOfRoom("ghost"); len(got) != 0 {
		t.Fatalf("expected empty set, got %d", len(got))
	}
}

func TestUnregisterRemovesFromEveryGroup(t *testing.T) {
	r := NewRegistry()
	c := newConn("c1")
	r.Register(c)
	if err := r.BindUser("c1", "u1"); err != nil {
		t.Fatalf("BindUser: %v", err)
	}
	r.JoinRoom("c1", "r1")
	r.JoinRoom("c1", "r2")

	removed := r.Unregister("c1")
	if removed != c {
		t.Fatal("Unregister should return the removed client")
	}
	for _, g := range []string{"r1", "r2"} {
		if n := len(r.MembersOfRoom(g)); n != 0 {
			t.Fatalf("room %s still has %d members", g, n)
		}
	}
	if n := len(r.MembersOfUser("u1")); n != 0 {
		t.Fatalf("user group still has %d members", n)
	}
	if n := len(r.All()); n != 0 {
		t.Fatalf("All() = %d, want 0", n)
	}
	if r.Unregister("c1") != nil {
		t.Fatal("second Unregister should be a no-op returning nil")
	}
}

func TestMultiDeviceUserGroup(t *testing.T) {
	r := NewRegistry()
	a, b := newConn("c1"), newConn("c2")
	r.Register(a)
	r.Register(b)
	if err := r.BindUser("c1", "u1"); err != nil {
		t.Fatalf("BindUser c1: %v", err)
	}
	if err := r.BindUser("c2", "u1"); err != nil {
		t.Fatalf("BindUser c2: %v", err)
	}
	if n := r.UserConnCount("u1"); n != 2 {
		t.Fatalf("UserConnCount = %d, want 2", n)
	}
	r.Unregister("c1")
	if n := r.UserConnCount("u1"); n != 1 {
		t.Fatalf("UserConnCount after one disconnect = %d, want 1", n)
	}
}

func TestRoomPeersExcludesSender(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c1", "c2", "c3"} {
		r.Register(newConn(id))
		r.JoinRoom(id, "r1")
	}
	peers := r.RoomPeers("r1", "c1")
	if len(peers) != 2 {
		t.Fatalf("peers = %d, want 2", len(peers))
	}
	for _, p := range peers {
		if p.ConnID == "c1" {
			t.Fatal("sender must not be among its own peers")
		}
	}
}
