package socket

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"workchat/logger"
	"workchat/tools/security"
)

const presenceTimeout = 2 * time.Second

// setupHandler binds a connection to its user group and acks with
// `connected` to that single connection. Repeating the handshake with the
// identical identity re-acks; a different identity is rejected and the
// connection stays in its prior state.
type setupHandler struct{}

func (h *setupHandler) Event() string { return EventSetup }

func (h *setupHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	s := ctx.S
	p, err := ExtractSetup(f.Data)
	if err != nil {
		logger.Infof("[setup] bad payload conn=%s err=%v", c.ConnID, err)
		return nil
	}
	if p.ID == "" {
		logger.Infof("[setup] missing _id conn=%s", c.ConnID)
		return nil
	}

	if s.jwtOpts != nil {
		sub, verr := security.VerifySubject(*s.jwtOpts, p.Token)
		if verr != nil {
			logger.Infof("[setup] token verify failed conn=%s user=%s err=%v", c.ConnID, p.ID, verr)
			return nil
		}
		if sub != p.ID {
			logger.Infof("[setup] token subject mismatch conn=%s user=%s sub=%s", c.ConnID, p.ID, sub)
			return nil
		}
	}

	if err := s.reg.BindUser(c.ConnID, p.ID); err != nil {
		if errors.Is(err, ErrAlreadyBound) {
			logger.Infof("[setup] rebind rejected conn=%s user=%s", c.ConnID, p.ID)
		} else {
			logger.Infof("[setup] bind err conn=%s user=%s err=%v", c.ConnID, p.ID, err)
		}
		return nil
	}

	s.markOnline(p.ID)

	ack, err := BuildFrame(EventConnected, nil)
	if err != nil {
		return err
	}
	c.Enqueue(ack)
	logger.Infof("[setup] bound conn=%s user=%s", c.ConnID, p.ID)
	return nil
}

// roomHandler serves both join and leave; both are idempotent and no
// acknowledgement is sent. Join is client-directed: membership against the
// chat document is not checked here (the authorization hook point).
type roomHandler struct {
	event string
}

func (h *roomHandler) Event() string { return h.event }

func (h *roomHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	roomID, err := ExtractRoomID(f.Data)
	if err != nil {
		logger.Infof("[room] bad payload conn=%s event=%q err=%v", c.ConnID, h.event, err)
		return nil
	}
	if h.event == EventJoinRoom {
		ctx.S.reg.JoinRoom(c.ConnID, roomID)
		logger.Infof("[room] join conn=%s room=%s", c.ConnID, roomID)
	} else {
		ctx.S.reg.LeaveRoom(c.ConnID, roomID)
		logger.Infof("[room] leave conn=%s room=%s", c.ConnID, roomID)
	}
	return nil
}

// typingHandler relays typing / stop typing to the other members of the
// room, never back to the sender. Fire-and-forget: no registry mutation,
// no ack, loss is acceptable.
type typingHandler struct {
	event string
}

func (h *typingHandler) Event() string { return h.event }

func (h *typingHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	roomID, err := ExtractRoomID(f.Data)
	if err != nil {
		logger.Infof("[typing] bad payload conn=%s err=%v", c.ConnID, err)
		return nil
	}
	frame, err := BuildFrame(h.event, roomID)
	if err != nil {
		return err
	}
	for _, peer := range ctx.S.reg.RoomPeers(roomID, c.ConnID) {
		peer.Enqueue(frame)
	}
	return nil
}

// echoHandler answers the connectivity probe.
type echoHandler struct{}

func (h *echoHandler) Event() string { return EventTest }

func (h *echoHandler) Handle(_ *Context, _ *Frame, c *Client) error {
	frame, err := BuildFrame(EventTestAck, testAckPayload{Message: "test received"})
	if err != nil {
		return err
	}
	c.Enqueue(frame)
	return nil
}

func (s *Server) markOnline(userID string) {
	pctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := s.presence.Online(pctx, userID); err != nil {
		logger.Warnf("[presence] online err user=%s err=%v", userID, err)
	}
}

func (s *Server) markOffline(userID string) {
	pctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := s.presence.Offline(pctx, userID); err != nil {
		logger.Warnf("[presence] offline err user=%s err=%v", userID, err)
	}
}
