package handlers

import (
	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/websocket"
	"volunteer-coordination/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type WebSocketHandler struct {
	hub        *websocket.Hub
	jwtManager *auth.JWTManager
	log        zerolog.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, jwtManager *auth.JWTManager, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jwtManager: jwtManager,
		log:        log,
	}
}

// HandleWebSocket attaches a live session for the token's user. Browsers
// cannot set headers on the upgrade request, so the JWT comes in ?token=.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		middleware.WriteError(c, apperrors.New(apperrors.CodeUnauthorized, "Token is required"))
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		middleware.WriteError(c, apperrors.New(apperrors.CodeUnauthorized, "Invalid token"))
		return
	}

	if err := h.hub.Serve(c.Writer, c.Request, claims.UserID); err != nil {
		// the upgrader has already replied on handshake failures
		h.log.Warn().Err(err).Str("user_id", claims.UserID.Hex()).Msg("WebSocket upgrade failed")
	}
}
