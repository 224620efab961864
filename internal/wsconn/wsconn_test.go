package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// wsServer is a minimal venue stand-in: it accepts one connection and hands
// it to script.
func wsServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		script(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestBackoffSchedule(t *testing.T) {
	c, err := New(Config{
		URL:           "ws://unused",
		Name:          "test",
		ReconnectMin:  time.Second,
		ReconnectMax:  10 * time.Second,
		BackoffGrowth: 1.7,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []time.Duration{
		1700 * time.Millisecond,
		2890 * time.Millisecond,
		4913 * time.Millisecond,
		8352 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
	}
	cur := time.Second
	for i, w := range want {
		cur = c.nextDelay(cur)
		diff := cur - w
		if diff < 0 {
			diff = -diff
		}
		if diff > 2*time.Millisecond {
			t.Fatalf("step %d: got %s, want ~%s", i, cur, w)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	c, err := New(Config{URL: "ws://x", Name: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.ReconnectMin != time.Second {
		t.Errorf("ReconnectMin = %s", c.cfg.ReconnectMin)
	}
	if c.cfg.ReconnectMax != 30*time.Second {
		t.Errorf("ReconnectMax = %s", c.cfg.ReconnectMax)
	}
	if c.cfg.BackoffGrowth != 1.7 {
		t.Errorf("BackoffGrowth = %v", c.cfg.BackoffGrowth)
	}

	if _, err := New(Config{Name: "no-url"}); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestEstablishedAfterFirstFrame(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-release
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"hello":true}`))
		<-ctx.Done()
	})

	c, err := New(DefaultConfig(url, "test"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var mu sync.Mutex
	var got []byte
	c.OnMessage(func(ctx context.Context, msg []byte) {
		mu.Lock()
		got = append([]byte(nil), msg...)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.ConnectWithRetry(ctx)

	waitFor(t, 2*time.Second, c.IsConnected)
	if c.IsEstablished() {
		t.Error("established before any frame arrived")
	}
	if c.MessageCount() != 0 {
		t.Errorf("MessageCount = %d before first frame", c.MessageCount())
	}
	if !c.LastMessageAt().IsZero() {
		t.Error("LastMessageAt should be zero before first frame")
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool { return c.MessageCount() == 1 })

	if !c.IsEstablished() {
		t.Error("not established after first frame")
	}
	if c.LastMessageAt().IsZero() {
		t.Error("LastMessageAt still zero after frame")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(got) != `{"hello":true}` {
		t.Errorf("handler got %q", got)
	}
}

func TestStaleTimerAbortsSilentSocket(t *testing.T) {
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done() // never send anything
	})

	cfg := DefaultConfig(url, "test")
	cfg.StaleTimeout = 80 * time.Millisecond
	cfg.ReconnectMin = 50 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	cfg.PingInterval = 0
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var mu sync.Mutex
	var transitions []State
	c.OnStateChange(func(s State, err error) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.ConnectWithRetry(ctx)

	// The silent socket must be torn down and redialed at least once.
	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range transitions {
			if s == StateReconnecting {
				return true
			}
		}
		return false
	})
}

func TestSendJSON(t *testing.T) {
	received := make(chan []byte, 1)
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- data
		<-ctx.Done()
	})

	c, err := New(DefaultConfig(url, "test"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.ConnectWithRetry(ctx)
	waitFor(t, 2*time.Second, c.IsConnected)

	if err := c.SendJSON(ctx, map[string]string{"method": "subscribe"}); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-received:
		if !strings.Contains(string(data), "subscribe") {
			t.Errorf("server received %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1", Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Send(context.Background(), []byte("x")); err == nil {
		t.Error("expected error sending on a closed connection")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1", Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s after Close", c.State())
	}
	if err := c.ConnectWithRetry(context.Background()); err != ErrClosed {
		t.Errorf("ConnectWithRetry after Close = %v, want ErrClosed", err)
	}
}
