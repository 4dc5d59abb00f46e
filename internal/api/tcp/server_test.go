package tcp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoynich/wsprovd/internal/server"
	"github.com/avoynich/wsprovd/internal/testutil"
)

func startTestServer(t *testing.T, accountTimeoutSec int) string {
	t.Helper()

	engine := newTestEngine(t, accountTimeoutSec)
	srv := NewServer(engine, "127.0.0.1:0", time.Minute, time.Minute, testutil.MakeNoopLogger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(server.NewPlainListener())
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
		require.NoError(t, <-errCh)
	})

	deadline := time.Now().Add(5 * time.Second)
	for srv.Address() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Address()
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestServer(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *testClient) recv() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func TestServer_SessionRoundTrip(t *testing.T) {
	addr := startTestServer(t, 900)
	c := dialTestServer(t, addr)

	greeting := c.recv()
	assert.Contains(t, greeting, `"name":"wsprovd"`)
	assert.Contains(t, greeting, `"code":200`)

	c.send("ADDWKSPC")
	ok := c.recv()
	assert.True(t, strings.HasPrefix(ok, "+OK "), ok)
	assert.Equal(t, ".", c.recv())

	// Loopback clients bypass the creation throttle entirely.
	c.send("ADDWKSPC")
	assert.True(t, strings.HasPrefix(c.recv(), "+OK "))
	assert.Equal(t, ".", c.recv())

	wid := strings.Fields(ok)[1]
	c.send("EXISTS " + wid + " inbox msg1")
	assert.Equal(t, "-ERR", c.recv())

	c.send("QUIT")
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.reader.ReadString('\n')
	assert.Error(t, err, "server closes the connection on QUIT")
}

func TestServer_OversizedCommandRejected(t *testing.T) {
	addr := startTestServer(t, 0)
	c := dialTestServer(t, addr)
	c.recv() // greeting

	// The oversized line never reaches the parser, so the bogus WID in
	// it cannot produce a workspace.
	c.send("REGISTER " + strings.Repeat("A", 10240) + " hash curve25519 key")
	assert.Equal(t, "400 BAD DATA", c.recv())

	// The session survives the rejection.
	c.send("ADDWKSPC")
	assert.True(t, strings.HasPrefix(c.recv(), "+OK "))
	assert.Equal(t, ".", c.recv())
}

func TestServer_ConcurrentSessions(t *testing.T) {
	addr := startTestServer(t, 0)

	done := make(chan string, 4)
	for i := 0; i < 4; i++ {
		go func() {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				done <- err.Error()
				return
			}
			defer conn.Close()

			reader := bufio.NewReader(conn)
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := reader.ReadString('\n'); err != nil {
				done <- err.Error()
				return
			}
			if _, err := conn.Write([]byte("ADDWKSPC\r\n")); err != nil {
				done <- err.Error()
				return
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				done <- err.Error()
				return
			}
			done <- strings.TrimRight(line, "\r\n")
		}()
	}

	wids := make(map[string]bool)
	for i := 0; i < 4; i++ {
		line := <-done
		require.True(t, strings.HasPrefix(line, "+OK "), line)
		wids[strings.Fields(line)[1]] = true
	}
	assert.Len(t, wids, 4, "every session got its own workspace")
}
