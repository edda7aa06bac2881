package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/rag"
)

// =============================================================================
// 🔌 WebSocket 流式问答 Handler
// =============================================================================

// 流协议标记。客户端按文本帧接收回答片段，
// EndMarker 表示一次回答完成，NoQueryMarker 表示请求帧缺少问题。
const (
	EndMarker     = "<<END>>"
	NoQueryMarker = "<<E:NO_QUERY>>"
	ErrorMarker   = "<<E:INTERNAL>>"
)

// StreamMetrics 流连接指标记录接口
type StreamMetrics interface {
	StreamOpened()
	StreamClosed()
}

type nopStreamMetrics struct{}

func (nopStreamMetrics) StreamOpened() {}
func (nopStreamMetrics) StreamClosed() {}

// StreamHandler WebSocket 流式问答处理器
type StreamHandler struct {
	orchestrator *rag.RetrievalOrchestrator
	metrics      StreamMetrics
	logger       *zap.Logger
	// 测试环境下允许跨 Origin 握手
	insecureSkipVerify bool
}

// NewStreamHandler 创建流式问答处理器
func NewStreamHandler(orchestrator *rag.RetrievalOrchestrator, metrics StreamMetrics, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopStreamMetrics{}
	}
	return &StreamHandler{
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger.With(zap.String("component", "stream_handler")),
	}
}

// AllowInsecureOrigin 关闭握手的 Origin 校验（仅用于测试）。
func (h *StreamHandler) AllowInsecureOrigin() {
	h.insecureSkipVerify = true
}

// streamFrame 客户端发来的一帧请求。
type streamFrame struct {
	Query string `json:"query"`
}

// HandleStream 处理 GET /ws/stream 请求
//
// 连接内循环处理多轮问答：每收到一帧 JSON 请求，流式推送回答
// 片段（文本帧），完成后发送 EndMarker。请求帧缺少 query 时发送
// NoQueryMarker 并关闭连接。
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.insecureSkipVerify,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// 对端正常断开不是错误
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			h.logger.Debug("websocket read ended", zap.Error(err))
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil || strings.TrimSpace(frame.Query) == "" {
			_ = conn.Write(ctx, websocket.MessageText, []byte(NoQueryMarker))
			conn.Close(websocket.StatusPolicyViolation, "query required")
			return
		}

		if err := h.streamAnswer(ctx, conn, frame.Query); err != nil {
			h.logger.Error("stream query failed", zap.Error(err))
			_ = conn.Write(ctx, websocket.MessageText, []byte(ErrorMarker))
			conn.Close(websocket.StatusInternalError, "stream failed")
			return
		}
	}
}

// streamAnswer 执行一轮流式问答并把片段逐帧写出。
func (h *StreamHandler) streamAnswer(ctx context.Context, conn *websocket.Conn, query string) error {
	result, err := h.orchestrator.ProcessQueryStream(ctx, query)
	if err != nil {
		return err
	}

	for chunk := range result.Chunks {
		if chunk.Err != nil {
			return chunk.Err
		}
		if chunk.Done {
			break
		}
		if chunk.Text == "" {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(chunk.Text)); err != nil {
			return err
		}
	}

	return conn.Write(ctx, websocket.MessageText, []byte(EndMarker))
}
