package socket

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"workchat/logger"
	"workchat/service/storage"
	"workchat/tools/ids"
	"workchat/tools/safe"
	"workchat/tools/security"
)

// Options configures a gateway server.
type Options struct {
	NodeID        string
	SendQueueSize int
	// AllowedOrigins restricts which browser origins may upgrade. Empty
	// accepts any origin, matching the source deployment where the
	// reverse proxy owns that check.
	AllowedOrigins []string
	// JWTSecret, when non-empty, makes the setup handshake verify the
	// carried token against the asserted identity.
	JWTSecret string
}

func (o *Options) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.NodeID == "" {
		o.NodeID = "gw-1"
	}
}

// Server owns the socket protocol: handshake, room membership, typing
// signals, and the read/write pumps of every connection.
type Server struct {
	opts     Options
	reg      *Registry
	disp     *Dispatcher
	fan      *Fanout
	presence storage.Presence
	jwtOpts  *security.Options
	upgrader websocket.Upgrader
}

func NewServer(opts Options, reg *Registry, fan *Fanout, presence storage.Presence) *Server {
	opts.norm()
	if presence == nil {
		presence = storage.NopPresence{}
	}
	s := &Server{
		opts:     opts,
		reg:      reg,
		disp:     NewDispatcher(),
		fan:      fan,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
	if opts.JWTSecret != "" {
		jo := security.DefaultOptions([]byte(opts.JWTSecret))
		s.jwtOpts = &jo
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.disp.Register(&setupHandler{})
	s.disp.Register(&roomHandler{event: EventJoinRoom})
	s.disp.Register(&roomHandler{event: EventLeaveRoom})
	s.disp.Register(&typingHandler{event: EventTyping})
	s.disp.Register(&typingHandler{event: EventStopTyping})
	s.disp.Register(&echoHandler{})
}

func (s *Server) Reg() *Registry { return s.reg }
func (s *Server) Fan() *Fanout   { return s.fan }

// originChecker builds the upgrade-time origin gate. Requests without an
// Origin header (native and server-side clients) always pass.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}

// HandleWS upgrades the request and runs the read loop until the client
// goes away.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), ws, s.opts.SendQueueSize)
	s.reg.Register(client)
	safe.Go("write-pump", client.WritePump)
	logger.Infof("[HandleWS] connected conn=%s remote=%s node=%s", client.ConnID, ws.RemoteAddr(), s.opts.NodeID)

	s.readLoop(ws, client)
	s.teardown(client)
}

func (s *Server) readLoop(ws *websocket.Conn, client *Client) {
	ctx := &Context{S: s}
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", client.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] ParseFrame err conn=%s err=%v sample=%q len=%d",
				client.ConnID, perr, sample, len(data))
			continue
		}

		h := s.disp.GetHandler(frame.Event)
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, frame, client); err != nil {
			// Protocol errors stay local: log, keep the connection in its
			// prior state, send nothing back.
			logger.Infof("[WS] handler err conn=%s event=%q err=%v", client.ConnID, frame.Event, err)
		}
	}
}

// teardown runs on transport disconnect: the connection leaves every group
// it was in and presence flips offline when its last device is gone.
func (s *Server) teardown(client *Client) {
	userID := s.reg.UserOf(client.ConnID)
	if removed := s.reg.Unregister(client.ConnID); removed != nil {
		removed.Close()
	}
	if userID != "" && s.reg.UserConnCount(userID) == 0 {
		s.markOffline(userID)
	}
	logger.Infof("[HandleWS] disconnected conn=%s user=%s", client.ConnID, userID)
}
