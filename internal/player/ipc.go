package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/alvarorichard/Gostream/internal/util"
)

const ipcTimeout = 2 * time.Second

// ErrPropertyUnavailable is returned while mpv has not loaded the file yet
var ErrPropertyUnavailable = errors.New("property unavailable")

// SendCommand sends one JSON command over the IPC socket and returns the
// data field of its reply. Event lines mpv interleaves are skipped.
func SendCommand(socket string, command ...any) (any, error) {
	conn, err := dialMPVSocket(socket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	payload, err := json.Marshal(map[string]any{"command": command})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, errors.Wrap(err, "write mpv command")
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		util.Debug("mpv reply", "line", line)
		if !gjson.Valid(line) {
			continue
		}
		reply := gjson.Parse(line)
		if reply.Get("event").Exists() {
			continue
		}
		switch msg := reply.Get("error").String(); msg {
		case "success", "":
			return reply.Get("data").Value(), nil
		case "property unavailable":
			return nil, ErrPropertyUnavailable
		default:
			return nil, fmt.Errorf("mpv: %s", msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read mpv reply")
	}
	return nil, errors.New("no reply from mpv")
}

// GetFloat reads a numeric property such as time-pos or duration
func GetFloat(socket, property string) (float64, error) {
	v, err := SendCommand(socket, "get_property", property)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s is %T, not a number", property, v)
	}
	return f, nil
}

// ToggleSubtitle flips subtitle visibility
func ToggleSubtitle(socket string) error {
	_, err := SendCommand(socket, "cycle", "sub-visibility")
	return err
}
