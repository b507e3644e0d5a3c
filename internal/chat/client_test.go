package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWs(t *testing.T, srv *httptest.Server, identity string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("X-Test-Identity", identity)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readUntil skips frames until one satisfies ok.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(ServerFrame) bool) ServerFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if ok(frame) {
			return frame
		}
	}
	t.Fatal("expected frame not received")
	return ServerFrame{}
}

func TestClient_WatchMessagesReceivesOtherSidesWrites(t *testing.T) {
	f := newFixture(t, alice, bob)
	srv := httptest.NewServer(newTestRouter(t, f))
	defer srv.Close()

	conv, err := f.conversations.FindOrCreate(t.Context(), alice, bob)
	require.NoError(t, err)

	a := dialWs(t, srv, alice)
	b := dialWs(t, srv, bob)

	require.NoError(t, b.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewMessages, ConversationID: conv.ID}))
	initial := readFrame(t, b)
	assert.Equal(t, ViewMessages, initial.View)
	assert.Empty(t, initial.Error)
	assert.Equal(t, []any{}, initial.Data)

	require.NoError(t, a.WriteJSON(ClientFrame{Action: ActionSend, ConversationID: conv.ID, Content: "marhaba"}))

	frame := readUntil(t, b, func(fr ServerFrame) bool {
		msgs, ok := fr.Data.([]any)
		return ok && len(msgs) == 1
	})
	msg := frame.Data.([]any)[0].(map[string]any)
	assert.Equal(t, "marhaba", msg["content"])
	assert.Equal(t, alice, msg["sender_id"])
}

func TestClient_WatchConversationsAndErrors(t *testing.T) {
	f := newFixture(t, alice, bob, carol)
	srv := httptest.NewServer(newTestRouter(t, f))
	defer srv.Close()

	conv, err := f.conversations.FindOrCreate(t.Context(), alice, bob)
	require.NoError(t, err)

	c := dialWs(t, srv, carol)

	require.NoError(t, c.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewMessages, ConversationID: conv.ID}))
	frame := readFrame(t, c)
	assert.Equal(t, "conversation not found", frame.Error)

	require.NoError(t, c.WriteJSON(ClientFrame{Action: "shout"}))
	frame = readFrame(t, c)
	assert.Equal(t, "unknown action", frame.Error)

	require.NoError(t, c.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewConversations}))
	frame = readFrame(t, c)
	assert.Equal(t, ViewConversations, frame.View)
	assert.Equal(t, []any{}, frame.Data)

	_, err = f.conversations.FindOrCreate(t.Context(), bob, carol)
	require.NoError(t, err)

	frame = readUntil(t, c, func(fr ServerFrame) bool {
		convs, ok := fr.Data.([]any)
		return fr.View == ViewConversations && ok && len(convs) == 1
	})
	other := frame.Data.([]any)[0].(map[string]any)["other_participant"].(map[string]any)
	assert.Equal(t, bob, other["id"])
}

func TestServeWs_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(newTestRouter(t, f))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClient_WatchMessagesByRowFilter(t *testing.T) {
	f := newFixture(t, alice, bob)
	srv := httptest.NewServer(newTestRouter(t, f))
	defer srv.Close()

	conv, err := f.conversations.FindOrCreate(t.Context(), alice, bob)
	require.NoError(t, err)
	f.store.insertDirect(conv.ID, alice, "first")

	b := dialWs(t, srv, bob)

	require.NoError(t, b.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewMessages, Filter: "conversation_id=eq." + conv.ID}))
	frame := readFrame(t, b)
	assert.Empty(t, frame.Error)
	assert.Equal(t, conv.ID, frame.ConversationID)
	require.Len(t, frame.Data, 1)

	require.NoError(t, b.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewMessages, Filter: "sender_id=eq." + alice}))
	frame = readFrame(t, b)
	assert.Equal(t, "unsupported filter", frame.Error)

	require.NoError(t, b.WriteJSON(ClientFrame{Action: ActionWatch, View: ViewMessages, Filter: "conversation_id"}))
	frame = readFrame(t, b)
	assert.Equal(t, "unsupported filter", frame.Error)
}
