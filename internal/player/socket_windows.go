//go:build windows

package player

import (
	"net"
	"path/filepath"
	"strings"

	"github.com/Microsoft/go-winio"
)

// dialMPVSocket connects to the named pipe mpv creates on Windows
func dialMPVSocket(socket string) (net.Conn, error) {
	if !strings.HasPrefix(socket, `\\.\pipe\`) {
		socket = `\\.\pipe\` + filepath.Base(socket)
	}
	timeout := ipcTimeout
	return winio.DialPipe(socket, &timeout)
}
