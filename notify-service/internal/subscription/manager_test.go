package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/notify-service/internal/hub"
	"github.com/weiawesome/picpipe/notify-service/internal/router"
	"github.com/weiawesome/picpipe/pkg/pubsub"
)

const (
	projectA = "11111111-1111-1111-1111-111111111111"
	projectB = "22222222-2222-2222-2222-222222222222"
)

var testOpts = hub.Options{
	PingInterval: time.Minute,
	PongWait:     time.Minute,
	WriteWait:    time.Second,
	SendBuffer:   16,
}

// process is one server process: its own Redis client, hub and manager,
// sharing Redis with the other processes of a test.
type process struct {
	mgr    *Manager
	router *router.Router
	srv    *httptest.Server
	ids    chan string
}

func startProcess(t *testing.T, mr *miniredis.Miniredis, instanceID string) *process {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := router.New(client, pubsub.NewRedisPubSubFromClient(client), "websocket")
	h := hub.NewHub()
	mgr := NewManager(instanceID, h, r)

	patterns, err := client.PubSubNumPat(context.Background()).Result()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(hubDone)
	}()
	go func() { _ = mgr.Run(ctx) }()

	p := &process{mgr: mgr, router: r, ids: make(chan string, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		c := hub.NewClient(mgr.NewConnID(), conn, testOpts)
		mgr.Connect(c)
		go c.WritePump()
		go c.ReadPump(func(*hub.Client, []byte) {}, func(c *hub.Client) {
			_ = mgr.Disconnect(context.Background(), c.ID)
		})
		p.ids <- c.ID
	}))

	t.Cleanup(func() {
		p.srv.Close()
		cancel()
		<-hubDone
		client.Close()
	})

	// Wait until the broadcast subscription is live.
	require.Eventually(t, func() bool {
		n, _ := client.PubSubNumPat(context.Background()).Result()
		return n > patterns
	}, 2*time.Second, 10*time.Millisecond)

	return p
}

func (p *process) dial(t *testing.T) (string, *websocket.Conn) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(p.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	select {
	case id := <-p.ids:
		return id, ws
	case <-time.After(2 * time.Second):
		t.Fatal("connection not registered")
		return "", nil
	}
}

func readPush(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func assertSilent(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := ws.ReadMessage()
	assert.Error(t, err, "unexpected message %s", data)
}

func TestSubscribeUnsubscribeErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	p := startProcess(t, mr, "p1")
	ctx := context.Background()
	id, _ := p.dial(t)

	require.NoError(t, p.mgr.Subscribe(ctx, id, projectA))
	assert.ErrorIs(t, p.mgr.Subscribe(ctx, id, projectA), domain.ErrAlreadySubscribed)
	assert.ErrorIs(t, p.mgr.Unsubscribe(ctx, id, projectB), domain.ErrNotInSubscriptions)
	require.NoError(t, p.mgr.Unsubscribe(ctx, id, projectA))
}

func TestFanOutToMatchingSubscribersOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	p := startProcess(t, mr, "p1")
	ctx := context.Background()

	c1, ws1 := p.dial(t)
	c2, ws2 := p.dial(t)
	c3, ws3 := p.dial(t)
	require.NoError(t, p.mgr.Subscribe(ctx, c1, projectA))
	require.NoError(t, p.mgr.Subscribe(ctx, c2, projectB))
	require.NoError(t, p.mgr.Subscribe(ctx, c3, projectA))

	require.NoError(t, p.mgr.Publish(ctx, projectA, pubsub.EventProjectUpdate, map[string]string{"project_id": projectA, "state": "PROGRESS"}))

	for _, ws := range []*websocket.Conn{ws1, ws3} {
		m := readPush(t, ws)
		assert.Equal(t, projectA, m["project_id"])
		assert.Equal(t, "PROGRESS", m["state"])
	}
	assertSilent(t, ws2)

	// Delivered once, not once per path.
	assertSilent(t, ws1)
}

func TestCrossProcessDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	p1 := startProcess(t, mr, "p1")
	p2 := startProcess(t, mr, "p2")
	ctx := context.Background()

	c1, ws1 := p1.dial(t)
	c2, ws2 := p2.dial(t)
	require.True(t, strings.HasPrefix(c1, "p1."))
	require.True(t, strings.HasPrefix(c2, "p2."))

	require.NoError(t, p1.mgr.Subscribe(ctx, c1, projectA))
	require.NoError(t, p2.mgr.Subscribe(ctx, c2, projectA))

	require.NoError(t, p1.mgr.Publish(ctx, projectA, pubsub.EventProjectUpdate, map[string]string{"state": "SUCCESS"}))

	assert.Equal(t, "SUCCESS", readPush(t, ws1)["state"])
	assert.Equal(t, "SUCCESS", readPush(t, ws2)["state"])
	assertSilent(t, ws1)
	assertSilent(t, ws2)
}

func TestDisconnectSweepsSubscriptions(t *testing.T) {
	mr := miniredis.RunT(t)
	p := startProcess(t, mr, "p1")
	ctx := context.Background()

	id, ws := p.dial(t)
	require.NoError(t, p.mgr.Subscribe(ctx, id, projectA))
	require.NoError(t, p.mgr.Subscribe(ctx, id, projectB))

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		subs, err := p.router.Subscriptions(ctx, id)
		return err == nil && len(subs) == 0
	}, 2*time.Second, 10*time.Millisecond)

	for _, project := range []string{projectA, projectB} {
		ids, err := p.router.Subscribers(ctx, project)
		require.NoError(t, err)
		assert.NotContains(t, ids, id)
	}

	// A second disconnect is a no-op.
	assert.NoError(t, p.mgr.Disconnect(ctx, id))
}

func TestFailedSendClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := router.New(client, pubsub.NewRedisPubSubFromClient(client), "websocket")
	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()
	mgr := NewManager("p1", h, r)

	// Nobody drains these queues, so the second delivery overflows "stuck".
	stuck := hub.NewClient("p1.stuck", nil, hub.Options{SendBuffer: 1})
	ok := hub.NewClient("p1.ok", nil, hub.Options{SendBuffer: 8})
	mgr.Connect(stuck)
	mgr.Connect(ok)
	require.NoError(t, mgr.Subscribe(ctx, stuck.ID, projectA))
	require.NoError(t, mgr.Subscribe(ctx, ok.ID, projectA))

	ev := &pubsub.Event{ProjectID: projectA, Payload: json.RawMessage(`{"state":"PROGRESS"}`)}
	mgr.Deliver(ctx, ev)
	mgr.Deliver(ctx, ev)

	assert.Eventually(t, func() bool { return !h.Has(stuck.ID) }, time.Second, 5*time.Millisecond)
	assert.True(t, h.Has(ok.ID))

	ids, err := r.Subscribers(ctx, projectA)
	require.NoError(t, err)
	assert.Equal(t, []string{ok.ID}, ids)
}
