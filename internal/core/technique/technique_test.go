package technique

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/pkg/interfaces"
)

type fixedDiscoverer struct {
	eps interfaces.Endpoints
	err error
}

func (d fixedDiscoverer) Discover(context.Context, int) (interfaces.Endpoints, error) {
	return d.eps, d.err
}

func TestAdvertise(t *testing.T) {
	ctx := context.Background()

	specific, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer specific.Close()

	wildcard, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer wildcard.Close()

	got, err := Advertise(ctx, specific, "", nil)
	require.NoError(t, err)
	assert.Equal(t, specific.Addr().String(), got.String())

	got, err = Advertise(ctx, wildcard, "203.0.113.9:4000", nil)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9:4000", got.String())

	_, err = Advertise(ctx, wildcard, "", nil)
	assert.ErrorIs(t, err, ErrNoEndpoint)

	public := &net.TCPAddr{IP: net.IPv4(198, 51, 100, 4), Port: 7000}
	got, err = Advertise(ctx, wildcard, "", fixedDiscoverer{eps: interfaces.Endpoints{Public: public}})
	require.NoError(t, err)
	assert.Equal(t, public, got)

	_, err = Advertise(ctx, wildcard, "", fixedDiscoverer{err: errors.New("no server")})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestCandidates(t *testing.T) {
	a := &net.TCPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 4000}
	b := &net.TCPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 4000}
	c := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5000}
	zero := &net.TCPAddr{IP: net.IPv4zero, Port: 5000}

	assert.Equal(t, []*net.TCPAddr{a, c}, Candidates(a, nil, b, zero, c))
	assert.Empty(t, Candidates(nil, zero))
}

// TestAcceptAuthenticated 跳过认证失败的连接，ctx 结束后监听器仍可用
func TestAcceptAuthenticated(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	for i := 0; i < 2; i++ {
		c, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer c.Close()
	}

	calls := 0
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := AcceptAuthenticated(ctx, ln, func(net.Conn) error {
		calls++
		if calls == 1 {
			return errors.New("bad token")
		}
		return nil
	})
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, 2, calls)

	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	_, err = AcceptAuthenticated(short, ln, func(net.Conn) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 截止时间已复位
	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	conn, err = AcceptAuthenticated(context.Background(), ln, func(net.Conn) error { return nil })
	require.NoError(t, err)
	conn.Close()
}
