package socketdemo

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("socketdemo", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.StageTimeout)
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("SOCKETDEMO_HTTP_ADDR", "env-addr")
	t.Setenv("SOCKETDEMO_DEBUG", "true")
	t.Setenv("SOCKETDEMO_LOG_FORMAT", "text")
	t.Setenv("SOCKETDEMO_STAGE_TIMEOUT", "3s")

	fs := flag.NewFlagSet("socketdemo", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-http-addr", "flag-addr",
		"-log-level", "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "flag-addr", cfg.HTTPAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.StageTimeout)
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("SOCKETDEMO_STAGE_TIMEOUT", "soon")

	_, err := ParseConfig(flag.NewFlagSet("socketdemo", flag.ContinueOnError), nil)
	assert.ErrorContains(t, err, "parse env")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, "json", "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, "xml", "info")
	assert.Error(t, err)

	_, err = NewLogger(&buf, "text", "loud")
	assert.Error(t, err)
}

func TestNewHandlerServesDemoModules(t *testing.T) {
	handler, err := NewHandler(Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/up")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, ws.WriteJSON(map[string]any{
		"event": "changeVolume",
		"id":    1,
		"data":  map[string]any{"settingsName": "music", "value": 20},
	}))

	var ack struct {
		Ack  uint64 `json:"ack"`
		Args []any  `json:"args"`
	}
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, uint64(1), ack.Ack)
	require.Len(t, ack.Args, 2)
	assert.Nil(t, ack.Args[0])
	assert.Equal(t, map[string]any{"sounds": float64(50), "music": float64(20)}, ack.Args[1])
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPAddr: "127.0.0.1:0", LogFormat: "text", LogLevel: "error"}, io.Discard)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
