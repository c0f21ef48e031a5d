package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"adpilot/internal/domain"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d, have %d", want, hub.ClientCount())
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)
	waitClients(t, hub, 2)

	hub.PublishAction(&domain.Action{
		ID:         "act_1",
		Kind:       domain.ActionPause,
		CampaignID: "camp1",
		Success:    true,
	})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		require.Equal(t, TypeAction, e.Type)
		require.NotZero(t, e.At)

		data, ok := e.Data.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "act_1", data["ID"])
		require.Equal(t, "camp1", data["CampaignID"])
	}
}

func TestHub_EventTypes(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)

	hub.PublishExecution(&domain.PipelineExecution{ID: "exec1", Stage: domain.StageScraping})
	hub.PublishSuggestion(&domain.Suggestion{ID: "sug_1", Kind: domain.ActionCreativeSwap})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	require.Equal(t, TypeExecution, e.Type)
	require.NoError(t, conn.ReadJSON(&e))
	require.Equal(t, TypeSuggestion, e.Type)
}

func TestHub_DropsDisconnectedClient(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)

	// Publishing with nobody listening is a no-op, not a panic.
	hub.PublishAction(&domain.Action{ID: "act_1"})
}

func TestHub_DropsSlowClient(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	cfg.WriteTimeout = 200 * time.Millisecond
	hub := NewHub(&cfg, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	// The client never reads; large payloads fill its socket buffer so the
	// writer stalls and the send buffer overflows.
	dialHub(t, srv)
	waitClients(t, hub, 1)

	payload := strings.Repeat("x", 1<<20)
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		hub.PublishAction(&domain.Action{ID: "act_flood", Reason: payload})
	}
	require.Equal(t, 0, hub.ClientCount())
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)

	require.NoError(t, hub.Close())
	require.Equal(t, 0, hub.ClientCount())

	// The dropped client sees the connection end.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
