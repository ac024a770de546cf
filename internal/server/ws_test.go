package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sibisee/sibisee/internal/frame"
	"github.com/sibisee/sibisee/internal/frame/frametest"
)

func dialLive(t *testing.T, env *testEnv) (*websocket.Conn, string) {
	t.Helper()

	srv := httptest.NewServer(env.server)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)

	var hello struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(msg, &hello))
	require.NotEmpty(t, hello.SessionID)
	return conn, hello.SessionID
}

func TestLiveSocket(t *testing.T) {
	t.Run("frames are answered in order", func(t *testing.T) {
		env := newTestEnv(t)
		conn, id := dialLive(t, env)

		_, ok := env.app.Live().Get(id)
		assert.True(t, ok, "session should be registered")

		sizes := [][2]int{{40, 60}, {32, 32}, {48, 80}}
		for _, size := range sizes {
			in := frametest.Solid(size[0], size[1], 10, 20, 30)
			payload := frametest.JPEG(t, in)
			in.Close()
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))
		}

		for _, size := range sizes {
			mt, msg, err := conn.ReadMessage()
			require.NoError(t, err)
			require.Equal(t, websocket.BinaryMessage, mt, string(msg))

			out, err := frame.Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, size[0], out.Rows())
			assert.Equal(t, size[1], out.Cols())
			out.Close()
		}
	})

	t.Run("bad frames get an error message and the session continues", func(t *testing.T) {
		env := newTestEnv(t)
		conn, id := dialLive(t, env)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not a jpeg")))
		mt, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Contains(t, string(msg), `"error"`)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
		mt, msg, err = conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Contains(t, string(msg), "binary")

		in := frametest.Solid(16, 16, 0, 0, 0)
		defer in.Close()
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frametest.JPEG(t, in)))
		mt, msg, err = conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, mt)
		assert.True(t, bytes.HasPrefix(msg, []byte{0xFF, 0xD8}))

		sess, ok := env.app.Live().Get(id)
		require.True(t, ok)
		info := sess.Info()
		assert.Equal(t, int64(2), info.Frames)
		assert.Equal(t, int64(1), info.FailedFrames)
	})

	t.Run("closing the session through the API closes the socket", func(t *testing.T) {
		env := newTestEnv(t)
		conn, id := dialLive(t, env)

		rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/live/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("client disconnect ends the session", func(t *testing.T) {
		env := newTestEnv(t)
		conn, id := dialLive(t, env)

		require.NoError(t, conn.Close())

		assert.Eventually(t, func() bool {
			_, ok := env.app.Live().Get(id)
			return !ok
		}, 2*time.Second, 10*time.Millisecond)

		rec, err := env.store.Sessions().GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, "websocket", rec.Transport)
	})
}
