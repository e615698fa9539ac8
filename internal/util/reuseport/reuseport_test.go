package reuseport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestListenAndDialSamePort 同一端口上同时监听和出站连接
func TestListenAndDialSamePort(t *testing.T) {
	if !Available {
		t.Skip("平台不支持端口复用")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remote, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer remote.Close()
	go func() {
		for {
			c, err := remote.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	ln, err := Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	conn, err := Dial(ctx, port, remote.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, port, conn.LocalAddr().(*net.TCPAddr).Port)

	// 第二个监听器也能绑定到同一端口
	ln2, err := Listen(ctx, ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln2.Close())

	require.NoError(t, Abort(conn))
	t.Logf("✅ 端口 %d 复用成功", port)
}
