//go:build linux

package reactor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/freekieb7/flint/test"
)

func startReactor(t *testing.T, cfg Config, proto Protocol) (*Reactor, *Listener, chan error) {
	t.Helper()

	ln, err := Listen("127.0.0.1:0")
	test.NoError(t, err)

	r, err := New(cfg, proto, WithLogger(slog.New(slog.DiscardHandler)))
	test.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		errc <- r.Serve(ln)
	}()
	return r, ln, errc
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	test.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestReactorEcho(t *testing.T) {
	r, ln, errc := startReactor(t, Config{Shards: 2}, &lineProto{})

	conns := make([]net.Conn, 4)
	for i := range conns {
		conns[i] = dial(t, ln.Addr())
	}

	for _, conn := range conns {
		_, err := conn.Write([]byte("hello\nworld\n"))
		test.NoError(t, err)

		reader := bufio.NewReader(conn)
		line, err := reader.ReadString('\n')
		test.NoError(t, err)
		test.Equal(t, "hello\n", line)
		line, err = reader.ReadString('\n')
		test.NoError(t, err)
		test.Equal(t, "world\n", line)

		_, err = conn.Write([]byte("quit\n"))
		test.NoError(t, err)
		line, err = reader.ReadString('\n')
		test.NoError(t, err)
		test.Equal(t, "bye\n", line)

		_, err = reader.ReadByte()
		test.ErrorIs(t, err, io.EOF)
		conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.NoError(t, r.Shutdown(ctx))
	test.NoError(t, <-errc)

	test.ErrorIs(t, r.Serve(ln), ErrReactorClosed)
}

func TestReactorShutdownClosesIdleConnections(t *testing.T) {
	r, ln, errc := startReactor(t, Config{Shards: 1}, &lineProto{})

	conn := dial(t, ln.Addr())
	defer conn.Close()

	_, err := conn.Write([]byte("ping\n"))
	test.NoError(t, err)
	reader := bufio.NewReader(conn)
	_, err = reader.ReadString('\n')
	test.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.NoError(t, r.Shutdown(ctx))
	test.NoError(t, <-errc)

	_, err = reader.ReadByte()
	test.ErrorIs(t, err, io.EOF)
	test.Equal(t, 0, r.ActiveConns())
}

func TestListenResolvesPort(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	test.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	test.True(t, addr.Port != 0)
	test.NoError(t, ln.Close())
	test.NoError(t, ln.Close())

	_, err = Listen("not-an-address")
	test.True(t, err != nil)
}
