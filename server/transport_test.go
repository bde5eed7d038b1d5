package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/engine"
	"github.com/grz0zrg/fas/protocol"
	"github.com/grz0zrg/fas/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, url string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
}

func TestServerFeedsSession(t *testing.T) {
	e := newEngine()
	stop := run(e)
	defer stop()
	s := server.NewSession(e, server.SessionConfig{PauseTimeout: time.Second, Seed: 1})
	srv := server.NewServer(s, server.TransportConfig{RxBufferSize: 16, MaxPacketSize: 64})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := dial(t, ts.URL)
	require.NoError(t, err)
	defer conn.Close()

	send := func(p []byte) {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, p))
	}
	send(protocol.AppendSettings(nil, fourVoices))
	require.Eventually(t, state(e, engine.AwaitingSettings), time.Second, time.Millisecond)
	send(make([]byte, 100)) // skipped, larger than the maximum packet size
	send(protocol.AppendGain(nil, fas.Gain{L: 1, R: 1}))
	send(protocol.AppendFrame8(nil, 1, channel8(4)))
	require.Eventually(t, state(e, engine.Playing), time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Stats().Frames == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(3), s.Stats().Packets)
	assert.Zero(t, s.Stats().Malformed)
}

func TestServerRefusesSecondClient(t *testing.T) {
	e := newEngine()
	s := server.NewSession(e, server.SessionConfig{})
	ts := httptest.NewServer(server.NewServer(s, server.TransportConfig{RxBufferSize: 1024}))
	defer ts.Close()

	first, _, err := dial(t, ts.URL)
	require.NoError(t, err)
	_, resp, err := dial(t, ts.URL)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	first.Close()
	require.Eventually(t, func() bool {
		c, _, err := dial(t, ts.URL)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 5*time.Millisecond, "slot is free again once the first client leaves")
}
