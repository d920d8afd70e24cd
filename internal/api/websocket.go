package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/product-designer/backend/internal/designer"
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/session"
)

// WebSocket message types for the designer protocol
const (
	// Client -> Server messages
	MsgTypeElementAdd    = "element:add"
	MsgTypeElementModify = "element:modify"
	MsgTypeElementRemove = "element:remove"
	MsgTypeElementSelect = "element:select"
	MsgTypeHistoryUndo   = "history:undo"
	MsgTypeHistoryRedo   = "history:redo"
	MsgTypePing          = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "event"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ElementAddPayload adds an element to a view
type ElementAddPayload struct {
	View    int                `json:"view"`
	Element models.ElementJSON `json:"element"`
}

// ElementModifyPayload applies a partial parameter update
type ElementModifyPayload struct {
	ElementID  string        `json:"elementId"`
	Parameters models.Params `json:"parameters"`
}

// ElementRefPayload names a single element
type ElementRefPayload struct {
	ElementID string `json:"elementId"`
}

// HistoryPayload names the view of an undo or redo
type HistoryPayload struct {
	View int `json:"view"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes session notifications to connected clients and
// applies the commands they send.
type WebSocketHandler struct {
	sessions       *session.Manager
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessions *session.Manager, maxMessageSize int64) *WebSocketHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 512 * 1024
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessageSize: maxMessageSize,
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendError(id, message, code string) {
	err := c.send(WSMessage{
		Type: MsgTypeError,
		ID:   id,
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
	if err != nil {
		fmt.Printf("[WebSocket] Failed to send error: %v\n", err)
	}
}

// HandleWebSocket upgrades the HTTP connection and streams the session's
// notifications until the client disconnects.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("sessionId")
	state, err := wsh.sessions.Get(sessionID)
	if err != nil {
		return NewNotFoundError("session", sessionID)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxMessageSize)

	conn := &wsConn{ws: ws}
	wsh.sessions.AddClient(sessionID)
	defer wsh.sessions.RemoveClient(sessionID)

	hook, err := state.Broadcaster.OnAny(func(_ context.Context, n models.Notification) error {
		return conn.send(WSMessage{Type: MsgTypeEvent, Payload: mustJSON(n)})
	})
	if err != nil {
		conn.sendError("", "session is closing", "UNAVAILABLE")
		return nil
	}
	defer hook.Unhook()

	fmt.Printf("[WebSocket] Client connected to session %s\n", sessionID)

	if sess, ok := wsh.sessions.GetSession(sessionID); ok {
		conn.send(WSMessage{Type: MsgTypeConnected, Payload: mustJSON(sess)})
	}

	ctx := c.Request().Context()
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}
		wsh.sessions.TouchSession(sessionID)
		wsh.dispatch(ctx, conn, state.Stage, msg)
	}

	fmt.Printf("[WebSocket] Client disconnected from session %s\n", sessionID)
	return nil
}

// dispatch applies one client command and acknowledges it.
func (wsh *WebSocketHandler) dispatch(ctx context.Context, conn *wsConn, stage *designer.Stage, msg WSMessage) {
	var (
		result interface{}
		err    error
	)

	switch msg.Type {
	case MsgTypePing:
		conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
		return
	case MsgTypeElementAdd:
		var p ElementAddPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			var id string
			id, err = stage.AddElement(ctx, p.View, p.Element)
			result = map[string]string{"elementId": id}
		}
	case MsgTypeElementModify:
		var p ElementModifyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = stage.ApplyOptions(p.ElementID, p.Parameters)
		}
	case MsgTypeElementRemove:
		var p ElementRefPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = stage.Remove(p.ElementID)
		}
	case MsgTypeElementSelect:
		var p ElementRefPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = stage.Select(p.ElementID)
		}
	case MsgTypeHistoryUndo, MsgTypeHistoryRedo:
		var p HistoryPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			if msg.Type == MsgTypeHistoryUndo {
				err = stage.Undo(p.View)
			} else {
				err = stage.Redo(p.View)
			}
			result = historyState{CanUndo: stage.CanUndo(p.View), CanRedo: stage.CanRedo(p.View)}
		}
	default:
		conn.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		return
	}

	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			conn.sendError(msg.ID, "Invalid payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		apiErr := fromDomain(err)
		conn.sendError(msg.ID, apiErr.Message, apiErr.Code)
		return
	}

	ack := WSMessage{Type: MsgTypeAck, ID: msg.ID}
	if result != nil {
		ack.Payload = mustJSON(result)
	}
	if err := conn.send(ack); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
