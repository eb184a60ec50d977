package evm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTestServer runs handle on each upgraded connection.
func wsTestServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_Call(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != "eth_call" {
				continue
			}
			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  "0x" + word("12"),
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	})

	client, err := Dial(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	out, err := client.CallContract(context.Background(), testAddr, selDecimals)
	require.NoError(t, err)
	assert.Equal(t, "0x"+word("12"), out)
}

func TestClient_CallError(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": 3, "message": "execution reverted"},
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	})

	client, err := Dial(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.CallContract(context.Background(), testAddr, selDecimals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestClient_SubscribeLogs(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" {
			return
		}
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xsub1",
		})

		// Push one log notification.
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xsub1",
				"result": Log{
					Address: testAddr,
					Topics:  []string{TopicSwapV2},
					Data:    "0x",
				},
			},
		})

		// Hold the connection open.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Dial(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.SubscribeLogs(context.Background(), LogFilter{Addresses: []string{testAddr}})
	require.NoError(t, err)

	select {
	case lg := <-sub.C():
		assert.Equal(t, testAddr, lg.Address)
		assert.Equal(t, TopicSwapV2, lg.Topics[0])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for log")
	}
}

func TestClient_DroppedRemovedLogs(t *testing.T) {
	notif, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params": map[string]interface{}{
			"subscription": "0xsub1",
			"result":       Log{Address: testAddr, Removed: true},
		},
	})
	require.NoError(t, err)

	url := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Dial(context.Background(), url, nil, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	// Register a fake subscription and feed the removed log directly.
	sub := &Subscription{c: client, id: "0xsub1", ch: make(chan Log, 1)}
	client.subsMu.Lock()
	client.subs["0xsub1"] = sub
	client.subsMu.Unlock()

	client.handleMessage(notif)

	select {
	case <-sub.C():
		t.Fatal("removed log should not be delivered")
	case <-time.After(100 * time.Millisecond):
	}
}
