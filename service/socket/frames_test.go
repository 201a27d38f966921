package socket

import (
	"testing"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"join room","data":"r1"}`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Event != EventJoinRoom {
		t.Fatalf("event = %q", f.Event)
	}

	if _, err := ParseFrame([]byte(`{"data":"x"}`)); err == nil {
		t.Fatal("expected error for missing event")
	}
	if _, err := ParseFrame([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestExtractRoomIDShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"raw string", `"r1"`, "r1", true},
		{"object with _id", `{"_id":"r2","chatName":"x"}`, "r2", true},
		{"empty string", `""`, "", false},
		{"object missing _id", `{"chatName":"x"}`, "", false},
	}
	for _, tc := range cases {
		got, err := ExtractRoomID([]byte(tc.raw))
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%s: got (%q, %v), want %q", tc.name, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if _, err := ExtractRoomID(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestExtractSetup(t *testing.T) {
	p, err := ExtractSetup([]byte(`{"_id":"u1","name":"Ann","email":"a@x","profilePic":"p.png"}`))
	if err != nil {
		t.Fatalf("ExtractSetup: %v", err)
	}
	if p.ID != "u1" || p.Name != "Ann" || p.Email != "a@x" || p.ProfilePic != "p.png" {
		t.Fatalf("decoded payload mismatch: %+v", p)
	}
	if _, err := ExtractSetup(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestBuildFrameRoundTrip(t *testing.T) {
	data, err := BuildFrame(EventTestAck, testAckPayload{Message: "test received"})
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	f, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Event != EventTestAck {
		t.Fatalf("event = %q", f.Event)
	}
}
