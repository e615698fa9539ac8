package classifier

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/types"
)

// freePort 取一个当前空闲的端口
func freePort(t *testing.T, ip string) int {
	t.Helper()
	ln, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startServer(t *testing.T, cfg ServerConfig) *ProbeServer {
	t.Helper()
	srv, err := NewProbeServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newLoopbackClassifier(t *testing.T, server string) *Classifier {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server = server
	cfg.FilteringTimeout = 300 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// TestProbeServer_WithoutAlternate 无备用地址：过滤 DontCare，回环上映射 NotRealized
func TestProbeServer_WithoutAlternate(t *testing.T) {
	if !reuseport.Available {
		t.Skip("平台不支持端口复用")
	}
	srv := startServer(t, ServerConfig{Primary: "127.0.0.1:0"})
	c := newLoopbackClassifier(t, srv.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port := freePort(t, "127.0.0.1")
	assert.Equal(t, types.DontCare, c.Filtering(ctx, port))
	assert.Equal(t, types.NotRealized, c.Mapping(ctx, port))

	eps, err := c.Discover(ctx, port)
	require.NoError(t, err)
	assert.Equal(t, port, eps.Public.Port)

	t.Log("✅ 无备用地址的服务器分类正确")
}

// TestProbeServer_WithAlternate 回环上的完整 RFC 5780 服务器：无 NAT 时过滤为端点无关
func TestProbeServer_WithAlternate(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("需要 127.0.0.0/8 全部可用的回环")
	}
	if testing.Short() {
		t.Skip("跳过网络集成测试")
	}

	p1 := freePort(t, "127.0.0.1")
	p2 := freePort(t, "127.0.0.2")
	srv := startServer(t, ServerConfig{
		Primary:   net.JoinHostPort("127.0.0.1", strconv.Itoa(p1)),
		Alternate: net.JoinHostPort("127.0.0.2", strconv.Itoa(p2)),
	})
	c := newLoopbackClassifier(t, srv.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port := freePort(t, "127.0.0.1")
	assert.Equal(t, types.EndpointIndependent, c.Filtering(ctx, port))
	assert.Equal(t, types.NotRealized, c.Mapping(ctx, port))
}

func TestProbeServer_CallbackSource(t *testing.T) {
	srv, err := NewProbeServer(ServerConfig{Primary: "10.0.0.1:3478", Alternate: "10.0.0.2:3479"})
	require.NoError(t, err)

	local := addr("10.0.0.1:3478")
	assert.Equal(t, "10.0.0.2:3479", srv.callbackSource(local, ChangeRequest{ChangeIP: true, ChangePort: true}).String())
	assert.Equal(t, "10.0.0.1:3479", srv.callbackSource(local, ChangeRequest{ChangePort: true}).String())
	assert.Equal(t, "10.0.0.2:3478", srv.callbackSource(local, ChangeRequest{ChangeIP: true}).String())
	assert.Equal(t, "10.0.0.1:3478", srv.callbackSource(local, ChangeRequest{}).String())

	alt := addr("10.0.0.2:3479")
	assert.Equal(t, "10.0.0.1:3478", srv.callbackSource(alt, ChangeRequest{ChangeIP: true, ChangePort: true}).String())
}

func TestNewProbeServer_InvalidAlternate(t *testing.T) {
	_, err := NewProbeServer(ServerConfig{Primary: "10.0.0.1:3478", Alternate: "10.0.0.1:3479"})
	assert.Error(t, err)

	_, err = NewProbeServer(ServerConfig{Primary: "10.0.0.1:3478", Alternate: "10.0.0.2:3478"})
	assert.Error(t, err)
}
