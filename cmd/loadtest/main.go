package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type user struct {
	name      string
	token     string
	profileID string
}

type stats struct {
	sent      atomic.Int64
	snapshots atomic.Int64
	failures  atomic.Int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	secret := flag.String("secret", os.Getenv("DALIL_AUTH_JWT_SECRET"), "HS256 secret shared with the identity platform")
	issuer := flag.String("issuer", os.Getenv("DALIL_AUTH_ISSUER"), "token issuer")
	pairs := flag.Int("pairs", 50, "number of conversing user pairs")
	msgCount := flag.Int("messages", 20, "messages sent per user")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if *secret == "" {
		logger.Error("JWT secret is not set (-secret or DALIL_AUTH_JWT_SECRET)")
		os.Exit(1)
	}

	lt := &loadTest{baseURL: strings.TrimRight(*baseURL, "/"), secret: []byte(*secret), issuer: *issuer, messages: *msgCount, logger: logger}
	logger.Info("Starting load test", "users", *pairs*2, "messages_per_user", *msgCount)

	start := time.Now()
	var wg sync.WaitGroup
	// User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			lt.runPair(pairID)
		}(i)
	}
	wg.Wait()

	logger.Info("Load test complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"sent", lt.stats.sent.Load(),
		"snapshots", lt.stats.snapshots.Load(),
		"failures", lt.stats.failures.Load(),
	)
}

type loadTest struct {
	baseURL  string
	secret   []byte
	issuer   string
	messages int
	logger   *slog.Logger
	stats    stats
}

func (lt *loadTest) runPair(pairID int) {
	a, err := lt.signUp(fmt.Sprintf("Load %d A", pairID))
	if err != nil {
		lt.fail("sign up", err)
		return
	}
	b, err := lt.signUp(fmt.Sprintf("Load %d B", pairID))
	if err != nil {
		lt.fail("sign up", err)
		return
	}

	var conv struct {
		ID string `json:"id"`
	}
	if err := lt.call(a.token, http.MethodPost, "/api/conversations", map[string]string{"other_id": b.profileID}, &conv); err != nil {
		lt.fail("create conversation", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go lt.chat(&wg, a, conv.ID)
	go lt.chat(&wg, b, conv.ID)
	wg.Wait()
}

// signUp mints a platform token for a fresh user id and creates its profile.
func (lt *loadTest) signUp(name string) (*user, error) {
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    lt.issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(lt.secret)
	if err != nil {
		return nil, err
	}

	var prof struct {
		ID string `json:"id"`
	}
	if err := lt.call(token, http.MethodPost, "/api/me", map[string]string{"full_name": name}, &prof); err != nil {
		return nil, err
	}
	return &user{name: name, token: token, profileID: prof.ID}, nil
}

// chat watches the conversation and sends messages over the same socket.
func (lt *loadTest) chat(wg *sync.WaitGroup, u *user, conversationID string) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(lt.baseURL, "http") + "/ws?token=" + u.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		lt.fail("websocket connect", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame struct {
				Error string `json:"error"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Error != "" {
				lt.stats.failures.Add(1)
				continue
			}
			lt.stats.snapshots.Add(1)
		}
	}()

	if err := conn.WriteJSON(map[string]string{"action": "watch", "view": "messages", "conversation_id": conversationID}); err != nil {
		lt.fail("watch", err)
		return
	}

	for i := 0; i < lt.messages; i++ {
		err := conn.WriteJSON(map[string]string{
			"action":          "send",
			"conversation_id": conversationID,
			"content":         fmt.Sprintf("LoadTest Msg %d from %s", i, u.name),
		})
		if err != nil {
			lt.fail("send", err)
			break
		}
		lt.stats.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Let the last snapshots arrive before hanging up.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	lt.logger.Debug("User finished", "user", u.name, "messages", lt.messages)
}

func (lt *loadTest) call(token, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, lt.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}

func (lt *loadTest) fail(step string, err error) {
	lt.stats.failures.Add(1)
	lt.logger.Warn("Load test step failed", "step", step, "error", err)
}
