package server

import (
	"taskhub/internal/realtime"

	"github.com/gin-gonic/gin"
)

// serveWS upgrades an authenticated request and hands the connection to the
// hub. The user room comes from the verified token, never from the client.
func (api *TaskAPI) serveWS(ctx *gin.Context) {
	userID := ctx.GetString(userIDKey)

	conn, err := api.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		api.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	go realtime.NewClient(api.hub, conn, userID).Serve()
}
