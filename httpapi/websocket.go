package httpapi

import (
	"errors"
	"net"
	"time"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"
	"FaceDetServer/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamDetect upgrades to a WebSocket. Text frames carry base64 images,
// binary frames carry encoded bytes. Each frame is answered with a JSON
// detection or {"error": ...}. The socket is closed after IdleTimeout
// without a frame.
func (s *Server) streamDetect(c *gin.Context) {
	id := c.Query("id")
	if _, err := s.Registry.Get(id); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxImageBytes)
	ctx := c.Request.Context()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout"),
					time.Now().Add(time.Second))
				logger.Log().Debug("websocket idle timeout", zap.Duration("timeout", s.IdleTimeout))
				return
			}
			logger.Log().Debug("websocket closed", zap.Error(err))
			return
		}

		var img iface.ImageData
		switch mt {
		case websocket.TextMessage:
			img, err = s.Decode.Base64(string(msg))
		case websocket.BinaryMessage:
			img, err = s.Decode(msg)
		}
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": "invalid image: " + err.Error()})
			continue
		}
		det, err := s.run(ctx, id, img)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": "inference error: " + err.Error()})
			continue
		}
		if err := conn.WriteJSON(engine.NewReport(det, false)); err != nil {
			return
		}
	}
}
