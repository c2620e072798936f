//go:build !windows

package player

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMPV answers IPC commands the way mpv does, with an event line first
func fakeMPV(t *testing.T, props map[string]any) (string, func() [][]any) {
	t.Helper()
	dir, err := os.MkdirTemp("", "mpv")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "sock")

	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var (
		mu       sync.Mutex
		received [][]any
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var req struct {
				Command []any `json:"command"`
			}
			line, _ := bufio.NewReader(conn).ReadBytes('\n')
			if json.Unmarshal(line, &req) != nil {
				_ = conn.Close()
				continue
			}
			mu.Lock()
			received = append(received, req.Command)
			mu.Unlock()

			reply := map[string]any{"error": "success", "data": nil}
			if req.Command[0] == "get_property" {
				v, ok := props[req.Command[1].(string)]
				if ok {
					reply["data"] = v
				} else {
					reply = map[string]any{"error": "property unavailable"}
				}
			}
			out, _ := json.Marshal(reply)
			_, _ = conn.Write([]byte(`{"event":"playback-restart"}` + "\n"))
			_, _ = conn.Write(append(out, '\n'))
			_ = conn.Close()
		}
	}()
	return socket, func() [][]any {
		mu.Lock()
		defer mu.Unlock()
		return received
	}
}

func TestGetFloat(t *testing.T) {
	socket, _ := fakeMPV(t, map[string]any{"time-pos": 42.5, "filename": "v.mp4"})

	pos, err := GetFloat(socket, "time-pos")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, pos, 0.001)

	_, err = GetFloat(socket, "duration")
	assert.ErrorIs(t, err, ErrPropertyUnavailable)

	_, err = GetFloat(socket, "filename")
	assert.ErrorContains(t, err, "not a number")
}

func TestSendCommand(t *testing.T) {
	socket, received := fakeMPV(t, nil)

	_, err := SendCommand(socket, "seek", 120, "absolute")
	require.NoError(t, err)
	require.NoError(t, ToggleSubtitle(socket))

	got := received()
	require.Len(t, got, 2)
	assert.Equal(t, []any{"seek", float64(120), "absolute"}, got[0])
	assert.Equal(t, []any{"cycle", "sub-visibility"}, got[1])
}

func TestSendCommandNoServer(t *testing.T) {
	_, err := SendCommand(filepath.Join(t.TempDir(), "missing"), "get_property", "pause")
	assert.Error(t, err)
}
