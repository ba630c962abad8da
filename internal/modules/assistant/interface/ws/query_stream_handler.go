package ws

import (
	"errors"
	"net/http"
	"time"

	"QueryLink/internal/modules/assistant/application/dto/request"
	"QueryLink/internal/modules/assistant/application/service"
	"QueryLink/pkg/xerr"
	"QueryLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	PhaseRetrieving = "retrieving"
	PhaseAnswer     = "answer"
	PhaseDone       = "done"
	PhaseError      = "error"
)

// StreamEvent 问答过程的阶段事件
type StreamEvent struct {
	Phase string      `json:"phase"`
	Data  interface{} `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// QueryStreamHandler WebSocket 问答 Handler。一条连接处理多轮问答：
// 客户端每发一条 QueryRequest，服务端回推 retrieving → answer → done。
type QueryStreamHandler struct {
	svc service.AssistantService
}

// NewQueryStreamHandler 创建 QueryStreamHandler
func NewQueryStreamHandler(svc service.AssistantService) *QueryStreamHandler {
	return &QueryStreamHandler{svc: svc}
}

// Connect 处理 WebSocket 连接
//
// 路由: GET /api/ws/query
func (h *QueryStreamHandler) Connect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Error("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req request.QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zlog.Warn("ws read failed", zap.Error(err))
			}
			return
		}

		if err := h.handleOne(c, conn, req); err != nil {
			return
		}
	}
}

// handleOne 单轮问答，写失败时返回错误以结束连接
func (h *QueryStreamHandler) handleOne(c *gin.Context, conn *websocket.Conn, req request.QueryRequest) error {
	if err := h.send(conn, StreamEvent{Phase: PhaseRetrieving}); err != nil {
		return err
	}

	data, err := h.svc.Answer(c.Request.Context(), req)
	if err != nil {
		msg := "query failed"
		if errors.Is(err, xerr.ErrInvalidInput) {
			msg = xerr.ErrInvalidInput.Message
		} else {
			zlog.Error("ws query failed", zap.Error(err))
		}
		// 单轮失败不断连接，客户端可以继续提问
		return h.send(conn, StreamEvent{Phase: PhaseError, Data: gin.H{"message": msg}})
	}

	if err := h.send(conn, StreamEvent{Phase: PhaseAnswer, Data: data}); err != nil {
		return err
	}
	return h.send(conn, StreamEvent{Phase: PhaseDone})
}

func (h *QueryStreamHandler) send(conn *websocket.Conn, ev StreamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(ev); err != nil {
		zlog.Warn("ws write failed", zap.Error(err))
		return err
	}
	return nil
}
