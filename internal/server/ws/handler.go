package ws

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/httputil"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	MsgTokenRequired = "Authentication token is required"
	MsgUserNotFound  = "User not found"
	MsgAuthFailed    = "Authentication failed"
)

// bearerProtocol is the subprotocol browsers use to pass the token, as
// in new WebSocket(url, ["bearer", token]).
const bearerProtocol = "bearer"

// Handler authenticates the handshake and upgrades the connection.
type Handler struct {
	hub      *Hub
	authn    *middleware.Authenticator
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHandler accepts browser connections from allowedOrigin only; "*"
// accepts any origin. Clients without an Origin header are always
// accepted.
func NewHandler(hub *Hub, authn *middleware.Authenticator, allowedOrigin string, logger logging.Logger) *Handler {
	return &Handler{
		hub:   hub,
		authn: authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{bearerProtocol},
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		logger: logger.With("module", "ws_handler"),
	}
}

// HandshakeToken finds the access token of a handshake: the token query
// parameter, then a "bearer, <token>" subprotocol list, then the
// Authorization header.
func HandshakeToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		parts := strings.Split(header, ",")
		for i := 0; i+1 < len(parts); i++ {
			if strings.EqualFold(strings.TrimSpace(parts[i]), bearerProtocol) {
				return strings.TrimSpace(parts[i+1])
			}
		}
	}
	return middleware.BearerToken(r.Header.Get("Authorization"))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := HandshakeToken(r)
	if token == "" {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, MsgTokenRequired)
		return
	}

	id, err := h.authn.Resolve(ctx, token)
	if err != nil {
		h.logger.Error(ctx, "Socket authentication error", "error", err)
		msg := MsgAuthFailed
		if common.Message(err, "") == middleware.MsgUserNotFound {
			msg = MsgUserNotFound
		}
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, msg)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn(ctx, "WebSocket upgrade failed", "userId", id.UserID, "error", err)
		return
	}

	c := newClient(uuid.NewString(), id.UserID, h.hub, conn)
	h.hub.register(c)
	h.logger.Info(ctx, "User connected to WebSocket", "userId", id.UserID, "connId", c.id)

	go c.writePump()
	go c.readPump()
}
