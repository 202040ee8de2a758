package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[string]chan []byte{}
	}
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *chanBus) subscribed(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[channel] != nil
}

func startHub(t *testing.T) (*chanBus, *httptest.Server) {
	t.Helper()
	bus := &chanBus{}
	hub := NewHub(bus, "orders", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	require.Eventually(t, func() bool { return bus.subscribed("orders") }, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	if strings.Contains(query, "format=proto") {
		var st structpb.Struct
		require.NoError(t, proto.Unmarshal(hello, &st))
		require.Equal(t, "subscribed", st.Fields["type"].GetStringValue())
		return conn
	}
	require.Contains(t, string(hello), `"subscribed"`)
	return conn
}

func TestHub_FiltersByChain(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?chainId=1")

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "orders", []byte(`{"hash":"0x01","chainId":137}`)))
	require.NoError(t, bus.Publish(ctx, "orders", []byte(`{"hash":"0x02","chainId":1}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, "0x02", got["hash"])
}

func TestHub_UnfilteredClientGetsEverything(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, bus.Publish(context.Background(), "orders", []byte(`{"hash":"0x0a","chainId":42161}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "0x0a")
}

func TestHub_ProtoFrames(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?format=proto")

	require.NoError(t, bus.Publish(context.Background(), "orders", []byte(`{"hash":"0x0b","chainId":1}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(msg, &st))
	require.Equal(t, "0x0b", st.Fields["hash"].GetStringValue())
	require.Equal(t, float64(1), st.Fields["chainId"].GetNumberValue())
}

func TestHandleWS_RejectsBadFilter(t *testing.T) {
	_, srv := startHub(t)
	for _, q := range []string{"?chainId=abc", "?swapper=0x12", "?orderType=Priority", "?format=xml"} {
		resp, err := http.Get(srv.URL + "/ws" + q)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestHub_StoppedHubNeverBlocks(t *testing.T) {
	bus := &chanBus{}
	hub := NewHub(bus, "orders", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return bus.subscribed("orders") }, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped

	c := &client{hub: hub, send: make(chan []byte, 1)}
	returned := make(chan bool)
	go func() {
		ok := hub.add(c)
		hub.remove(c)
		returned <- ok
	}()
	select {
	case ok := <-returned:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("register or unregister blocked after Run returned")
	}

	handled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		close(handled)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked after Run returned")
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestFilterMatches(t *testing.T) {
	f := filter{orderType: "Dutch_V2"}
	require.True(t, f.matches([]byte(`{"orderType":"Dutch_V2"}`)))
	require.False(t, f.matches([]byte(`{"orderType":"Dutch"}`)))
	require.False(t, f.matches([]byte(`not json`)))
	require.True(t, filter{}.matches([]byte(`not json`)))
}
