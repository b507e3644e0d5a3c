package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-dalil/internal/apperror"
	"go-dalil/internal/query"
	"go-dalil/internal/realtime"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.
	sendBuffer     = 64
	snapshotWait   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the fronting proxy
	},
}

// Client is one socket. Each watched view pairs a realtime scope with a cache
// watcher; whenever the view's cache entry is invalidated the client re-reads
// it and pushes a snapshot.
type Client struct {
	handler  *Handler
	conn     *websocket.Conn
	send     chan []byte
	identity string
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	views map[string]*liveView
}

type liveView struct {
	scope   *View
	watcher *query.Watcher
	stop    chan struct{}
	done    chan struct{}
}

func newClient(h *Handler, conn *websocket.Conn, identity string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		handler:  h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		logger:   h.logger.With("identity", identity),
		ctx:      ctx,
		cancel:   cancel,
		views:    make(map[string]*liveView),
	}
}

// Close stops both pumps and every watched view.
func (c *Client) Close() {
	c.cancel()
}

// readPump pumps frames from the websocket connection to the client's views.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.closeViews()
		c.handler.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.push(ServerFrame{Error: "malformed frame"})
			continue
		}
		c.dispatch(frame)
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (c *Client) dispatch(frame ClientFrame) {
	frame, err := resolveFilter(frame)
	if err != nil {
		c.push(ServerFrame{View: frame.View, Error: apperror.GetMessage(err)})
		return
	}
	switch frame.Action {
	case ActionWatch:
		err = c.watch(frame)
	case ActionUnwatch:
		c.unwatch(viewName(frame))
	case ActionSend:
		_, err = c.handler.send(c.ctx, c.identity, frame.ConversationID, frame.Content)
	default:
		err = apperror.ErrInvalidParams.WithMessage("unknown action")
	}
	if err != nil {
		c.push(ServerFrame{View: frame.View, ConversationID: frame.ConversationID, Error: apperror.GetMessage(err)})
	}
}

// resolveFilter takes the conversation from a "conversation_id=eq.<id>" row
// filter when the frame does not name it directly.
func resolveFilter(frame ClientFrame) (ClientFrame, error) {
	if frame.Filter == "" || frame.ConversationID != "" {
		return frame, nil
	}
	column, value, err := realtime.ParseRowFilter(frame.Filter)
	if err != nil || column != "conversation_id" {
		return frame, apperror.ErrInvalidParams.WithMessage("unsupported filter")
	}
	frame.ConversationID = value
	return frame, nil
}

func viewName(frame ClientFrame) string {
	if frame.View == ViewMessages {
		return ViewMessages + ":" + frame.ConversationID
	}
	return frame.View
}

func (c *Client) watch(frame ClientFrame) error {
	name := viewName(frame)

	c.mu.Lock()
	_, exists := c.views[name]
	c.mu.Unlock()
	if exists {
		return nil
	}

	var (
		scope    *View
		watcher  *query.Watcher
		snapshot func(ctx context.Context) (any, error)
		err      error
	)

	switch frame.View {
	case ViewConversations:
		scope, err = c.handler.sync.WatchConversations(c.ctx, c.identity)
		if err != nil {
			return apperror.Remote(err)
		}
		watcher = c.handler.conversations.Watch(c.identity)
		snapshot = func(ctx context.Context) (any, error) {
			return c.handler.conversations.List(ctx, c.identity)
		}

	case ViewMessages:
		if _, err := c.handler.conversations.Get(c.ctx, c.identity, frame.ConversationID); err != nil {
			return err
		}
		scope, err = c.handler.sync.WatchMessages(c.ctx, frame.ConversationID)
		if err != nil {
			return apperror.Remote(err)
		}
		watcher = c.handler.messages.Watch(frame.ConversationID)
		snapshot = func(ctx context.Context) (any, error) {
			msgs, _, err := c.handler.messages.History(ctx, frame.ConversationID)
			return msgs, err
		}

	default:
		return apperror.ErrInvalidParams.WithMessage("unknown view")
	}

	lv := &liveView{scope: scope, watcher: watcher, stop: make(chan struct{}), done: make(chan struct{})}
	c.mu.Lock()
	if _, exists := c.views[name]; exists {
		c.mu.Unlock()
		watcher.Stop()
		scope.Close()
		return nil
	}
	c.views[name] = lv
	c.mu.Unlock()

	go c.follow(lv, frame, snapshot)
	return nil
}

// follow pushes one snapshot now and another after every invalidation.
func (c *Client) follow(lv *liveView, frame ClientFrame, snapshot func(ctx context.Context) (any, error)) {
	defer close(lv.done)

	pushSnapshot := func() {
		ctx, cancel := context.WithTimeout(c.ctx, snapshotWait)
		defer cancel()
		data, err := snapshot(ctx)
		if err != nil {
			c.push(ServerFrame{View: frame.View, ConversationID: frame.ConversationID, Error: apperror.GetMessage(err)})
			return
		}
		c.push(ServerFrame{View: frame.View, ConversationID: frame.ConversationID, Data: data})
	}

	pushSnapshot()
	for {
		select {
		case <-lv.watcher.C():
			pushSnapshot()
		case <-lv.stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) unwatch(name string) {
	c.mu.Lock()
	lv, ok := c.views[name]
	delete(c.views, name)
	c.mu.Unlock()
	if ok {
		lv.close()
	}
}

func (c *Client) closeViews() {
	c.mu.Lock()
	views := c.views
	c.views = make(map[string]*liveView)
	c.mu.Unlock()

	for _, lv := range views {
		lv.close()
	}
}

func (lv *liveView) close() {
	close(lv.stop)
	<-lv.done
	lv.watcher.Stop()
	lv.scope.Close()
}

// push queues a frame. A client that cannot keep up is disconnected.
func (c *Client) push(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to encode frame", "error", err)
		return
	}
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, disconnecting")
		c.cancel()
	}
}
