//go:build !windows

package player

import "net"

func dialMPVSocket(socket string) (net.Conn, error) {
	return net.DialTimeout("unix", socket, ipcTimeout)
}
