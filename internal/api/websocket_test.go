package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, env *testEnv, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + sessionID + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

// readReply skips notifications and returns the next direct reply.
func readReply(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	for {
		if msg := readMessage(t, ws); msg.Type != MsgTypeEvent {
			return msg
		}
	}
}

func sendMessage(t *testing.T, ws *websocket.Conn, msgType, id string, payload interface{}) {
	t.Helper()
	msg := WSMessage{Type: msgType, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = data
	}
	require.NoError(t, ws.WriteJSON(msg))
}

func TestWebSocketConnected(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.startSession(t)
	ws := dialSession(t, env, sid)

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeConnected, msg.Type)
	var sess models.DesignSession
	require.NoError(t, json.Unmarshal(msg.Payload, &sess))
	assert.Equal(t, sid, sess.ID)
	assert.Equal(t, 1, sess.Clients)
}

func TestWebSocketAddElement(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.startSession(t)
	ws := dialSession(t, env, sid)
	readMessage(t, ws)

	sendMessage(t, ws, MsgTypeElementAdd, "req-1", ElementAddPayload{
		View:    0,
		Element: models.ElementJSON{Type: models.ElementTypeText, Source: "Hi", Title: "Name"},
	})

	var (
		elementID string
		sawAdd    bool
	)
	for elementID == "" || !sawAdd {
		msg := readMessage(t, ws)
		switch msg.Type {
		case MsgTypeAck:
			assert.Equal(t, "req-1", msg.ID)
			var ack map[string]string
			require.NoError(t, json.Unmarshal(msg.Payload, &ack))
			elementID = ack["elementId"]
			require.NotEmpty(t, elementID)
		case MsgTypeEvent:
			var n models.Notification
			require.NoError(t, json.Unmarshal(msg.Payload, &n))
			if n.Kind == models.NotifyElementAdd {
				sawAdd = true
			}
		case MsgTypeError:
			t.Fatalf("unexpected error message: %s", msg.Payload)
		}
	}

	stage, err := env.sessions.Stage(sid)
	require.NoError(t, err)
	el, err := stage.Element(elementID)
	require.NoError(t, err)
	assert.Equal(t, "Name", el.Title)
}

func TestWebSocketErrors(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.startSession(t)
	ws := dialSession(t, env, sid)
	readMessage(t, ws)

	tests := []struct {
		name     string
		msgType  string
		payload  interface{}
		wantCode string
	}{
		{name: "unknown type", msgType: "element:explode", wantCode: "INVALID_TYPE"},
		{name: "bad payload", msgType: MsgTypeElementAdd, payload: map[string]string{"view": "front"}, wantCode: "INVALID_PAYLOAD"},
		{name: "missing element", msgType: MsgTypeElementRemove, payload: ElementRefPayload{ElementID: "nope"}, wantCode: "NOT_FOUND"},
		{name: "nothing to undo", msgType: MsgTypeHistoryUndo, payload: HistoryPayload{View: 0}, wantCode: "CONFLICT"},
		{name: "malformed element", msgType: MsgTypeElementAdd, payload: ElementAddPayload{Element: models.ElementJSON{Type: models.ElementTypeText}}, wantCode: "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sendMessage(t, ws, tt.msgType, tt.name, tt.payload)
			msg := readReply(t, ws)
			require.Equal(t, MsgTypeError, msg.Type, string(msg.Payload))
			assert.Equal(t, tt.name, msg.ID)
			var resp WSErrorResponse
			require.NoError(t, json.Unmarshal(msg.Payload, &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestWebSocketPing(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.startSession(t)
	ws := dialSession(t, env, sid)
	readMessage(t, ws)

	sendMessage(t, ws, MsgTypePing, "p1", nil)
	msg := readReply(t, ws)
	assert.Equal(t, MsgTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)
}

func TestWebSocketUnknownSession(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
