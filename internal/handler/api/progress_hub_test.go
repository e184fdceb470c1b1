package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	xlogger "CoinPull/pkg/logger"
)

func TestProgressHubStreamsEvents(t *testing.T) {
	hub := NewProgressHub(xlogger.Nop())
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer hub.Close()

	hub.OnProgress(models.Progress{RunID: "r1", Iteration: 1, Iterations: 3, RowsAdded: 2, TotalRows: 2})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first models.Progress
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 1, first.Iteration)
	assert.Equal(t, "r1", first.RunID)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.OnProgress(models.Progress{RunID: "r1", Iteration: 2, Iterations: 3, RowsAdded: 2, TotalRows: 4})

	var second models.Progress
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 2, second.Iteration)
	assert.Equal(t, 4, second.TotalRows)
}

func TestProgressHubDropsClosedClients(t *testing.T) {
	hub := NewProgressHub(xlogger.Nop())
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
