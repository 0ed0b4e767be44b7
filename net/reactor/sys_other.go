//go:build !linux

package reactor

import "net"

func newPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}

type unsupportedIO struct{}

func (unsupportedIO) Read(int, []byte) (int, error)     { return 0, ErrUnsupportedPlatform }
func (unsupportedIO) Write(int, []byte) (int, error)    { return 0, ErrUnsupportedPlatform }
func (unsupportedIO) Accept(int) (int, net.Addr, error) { return -1, nil, ErrUnsupportedPlatform }
func (unsupportedIO) Close(int) error                   { return ErrUnsupportedPlatform }

// Listen is only implemented on Linux.
func Listen(addr string) (*Listener, error) {
	return nil, ErrUnsupportedPlatform
}

func defaultIO() fdio { return unsupportedIO{} }
