//go:build !unix

package server

import "net"

func listenUnix(path string, _ int) (net.Listener, error) {
	return net.Listen("unix", path)
}
