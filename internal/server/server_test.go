package server_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/core"
	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
	"github.com/0xRadioAc7iv/go-kvs/internal/server"
	"github.com/0xRadioAc7iv/go-kvs/pkg/kvs"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()

	logger, _ := test.NewNullLogger()
	store, err := kvs.Open("/data", core.WithFS(vfs.NewMem()), core.WithLogger(logger))
	require.NoError(t, err)

	ln, err := server.Listen("127.0.0.1:0", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.New(store, logger).Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		require.NoError(t, store.Close())
	})

	return ln.Addr().String()
}

type conn struct {
	t *testing.T
	net.Conn
}

func dial(t *testing.T, addr string) *conn {
	t.Helper()

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return &conn{t: t, Conn: c}
}

func (c *conn) do(cmd, key, val string) (protocol.Status, string) {
	c.t.Helper()

	payload, err := protocol.EncodeCommand(cmd, []byte(key), []byte(val))
	require.NoError(c.t, err)
	_, err = c.Write(payload)
	require.NoError(c.t, err)

	resp, err := protocol.DecodeResponse(c)
	require.NoError(c.t, err)
	return resp.Status, string(resp.Payload)
}

func TestServerCommands(t *testing.T) {
	c := dial(t, startServer(t))

	tests := []struct {
		cmd, key, val string
		status        protocol.Status
		payload       string
	}{
		{"ping", "", "", protocol.StatusOK, "PONG!"},
		{"get", "a", "", protocol.StatusNotFound, "Key not found"},
		{"set", "a", "1", protocol.StatusOK, "ok"},
		{"SET", "b", "two words", protocol.StatusOK, "ok"},
		{"get", "a", "", protocol.StatusOK, "1"},
		{"get", "b", "", protocol.StatusOK, "two words"},
		{"exists", "a", "", protocol.StatusOK, "true"},
		{"count", "", "", protocol.StatusOK, "2"},
		{"list", "", "", protocol.StatusOK, "a\nb"},
		{"rm", "a", "", protocol.StatusOK, "ok"},
		{"rm", "a", "", protocol.StatusNotFound, "Key not found"},
		{"delete", "b", "", protocol.StatusOK, "ok"},
		{"exists", "a", "", protocol.StatusOK, "false"},
		{"list", "", "", protocol.StatusOK, ""},
		{"compact", "", "", protocol.StatusOK, "ok"},
		{"bogus", "", "", protocol.StatusError, "Invalid Command"},
	}

	for _, tt := range tests {
		status, payload := c.do(tt.cmd, tt.key, tt.val)
		require.Equal(t, tt.status, status, "%s %s", tt.cmd, tt.key)
		require.Equal(t, tt.payload, payload, "%s %s", tt.cmd, tt.key)
	}

	status, payload := c.do("stats", "", "")
	require.Equal(t, protocol.StatusOK, status)
	require.True(t, strings.HasPrefix(payload, "live_keys: 0\n"), payload)
	require.Contains(t, payload, "compactions: 1")

	status, payload = c.do("help", "", "")
	require.Equal(t, protocol.StatusOK, status)
	require.Contains(t, payload, "Available Commands")
}

func TestServerSharesStoreBetweenConnections(t *testing.T) {
	addr := startServer(t)
	first := dial(t, addr)
	second := dial(t, addr)

	status, _ := first.do("set", "shared", "v")
	require.Equal(t, protocol.StatusOK, status)

	status, payload := second.do("get", "shared", "")
	require.Equal(t, protocol.StatusOK, status)
	require.Equal(t, "v", payload)
}

func TestServerStopsWithOpenConnections(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store, err := kvs.Open("/data", core.WithFS(vfs.NewMem()), core.WithLogger(logger))
	require.NoError(t, err)
	defer store.Close()

	ln, err := server.Listen("127.0.0.1:0", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.New(store, logger).Serve(ctx, ln) }()

	c := dial(t, ln.Addr().String())
	status, _ := c.do("ping", "", "")
	require.Equal(t, protocol.StatusOK, status)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = protocol.DecodeResponse(c)
	require.Error(t, err, "connection should be closed by shutdown")
}

func TestListenProbesNextPort(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	ln, err := server.Listen(taken.Addr().String(), 20)
	require.NoError(t, err)
	defer ln.Close()

	require.NotEqual(t, taken.Addr().String(), ln.Addr().String())

	_, err = server.Listen(taken.Addr().String(), 1)
	require.Error(t, err)
}
