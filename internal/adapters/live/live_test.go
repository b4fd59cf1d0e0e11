package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/hwpulse/internal/domain"
)

func testServer(t *testing.T) (*Store, *httptest.Server) {
	t.Helper()
	store := NewStore()
	mux := http.NewServeMux()
	NewHandler(store, logr.Discard()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return store, srv
}

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Sample: domain.Sample{
			DateTime:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			TopProcessName: "chrome-exe",
			Values:         map[string]float64{"gpuTempVal": 61.5},
		},
		Windows: map[string][]float64{"gpuTempVal": {60, 61.5}},
	}
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSnapshotEndpoint(t *testing.T) {
	store, srv := testServer(t)
	store.Publish(sampleSnapshot())

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "sysStats")
	assert.Contains(t, body, "dataPoints")
	assert.JSONEq(t, `{"gpuTempVal":[60,61.5]}`, string(body["dataPoints"]))

	post, err := http.Post(srv.URL+"/api/snapshot", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestWebsocketRepliesPerMessage(t *testing.T) {
	store, srv := testServer(t)
	store.Publish(sampleSnapshot())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("stats")))

		var got domain.Snapshot
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "chrome-exe", got.Sample.TopProcessName)
		assert.Equal(t, []float64{60, 61.5}, got.Windows["gpuTempVal"])
	}
}
