package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"StoryToVideo-client/models"
	"StoryToVideo-client/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProjectUpdate 推给 UI 的消息，与远端推送通道的格式相同
type ProjectUpdate struct {
	Type    string         `json:"type"`
	Project models.Project `json:"project"`
}

// 项目快照 WebSocket 推送：GET /projects/:project_id/wss
// 先推送当前快照，之后每次快照替换推送一次；项目被删除或关闭时断开
func (h *Handler) ProjectWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := h.Projects.Open(c.Request.Context(), projectID); err != nil {
		h.fail(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "project_id", projectID, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.Projects.Watch(projectID)
	defer cancel()

	// 读协程只负责发现客户端断开
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case p, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "project closed"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(ProjectUpdate{Type: pipeline.MessageProjectUpdate, Project: p}); err != nil {
				return
			}
		}
	}
}
