package direct

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/internal/core/mediator"
	"github.com/dep2p/go-natt/pkg/types"
)

func loopbackConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

// serveOne 在目标端处理一个连接请求
func serveOne(ctx context.Context, tech *Technique, ch *mediator.Channel) <-chan net.Conn {
	out := make(chan net.Conn, 1)
	go func() {
		defer close(out)
		req, err := ch.Receive(ctx)
		if err != nil {
			return
		}
		conn, err := tech.CreateTargetSideConnection(ctx, req.Source, ch, req)
		if err != nil {
			return
		}
		out <- conn
	}()
	return out
}

func TestDirect_Registered(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := New(loopbackConfig(), nil)
	require.NoError(t, target.RegisterAtMediator(ctx, dst))
	defer target.DeregisterAtMediator(ctx, dst)
	require.NotNil(t, target.Addr())

	accepted := serveOne(ctx, target, dst)

	conn, err := New(DefaultConfig(), nil).CreateSourceSideConnection(ctx, "peer-b", src)
	require.NoError(t, err)
	defer conn.Close()

	peer := <-accepted
	require.NotNil(t, peer)
	defer peer.Close()

	_, err = conn.Write([]byte("hi"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))

	// 注册监听器在一次连接后仍然可用
	assert.Equal(t, target.Addr().String(), peer.LocalAddr().String())
	t.Log("✅ 直连建立成功")
}

func TestDirect_TemporaryListener(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := New(loopbackConfig(), nil)
	accepted := serveOne(ctx, target, dst)

	conn, err := New(DefaultConfig(), nil).CreateSourceSideConnection(ctx, "peer-b", src)
	require.NoError(t, err)
	defer conn.Close()

	peer := <-accepted
	require.NotNil(t, peer)
	defer peer.Close()
	assert.Nil(t, target.Addr())
}

// TestDirect_NoAdvertisedEndpoint 通配监听且无法观测端点时拒绝请求
func TestDirect_NoAdvertisedEndpoint(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := New(DefaultConfig(), nil)
	accepted := serveOne(ctx, target, dst)

	_, err := New(DefaultConfig(), nil).CreateSourceSideConnection(ctx, "peer-b", src)
	var re *mediator.ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, mediator.CodeTechniqueError, re.Code)
	assert.Nil(t, <-accepted)
}

func TestDirect_TargetCancel(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	target := New(loopbackConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, target.RegisterAtMediator(ctx, dst))
	defer target.DeregisterAtMediator(ctx, dst)

	tctx, tcancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer tcancel()

	done := make(chan error, 1)
	go func() {
		req := &types.ControlMessage{Kind: types.KindConnect, Class: types.ClassRequest, Technique: TechniqueID}
		_, err := target.CreateTargetSideConnection(tctx, "peer-a", dst, req)
		done <- err
	}()

	// 读走目标端的回复，但不拨号
	go func() {
		_, _ = src.Receive(ctx)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("目标端未在取消后返回")
	}
}

func TestDirect_Metadata(t *testing.T) {
	md := New(DefaultConfig(), nil).Metadata()
	assert.Equal(t, TechniqueID, md.ID)
	assert.True(t, md.DirectPath)
	assert.True(t, md.Traverses(types.NewSituation(types.AddressDependent, types.AddressDependent, types.NotRealized, types.NotRealized)))
	assert.False(t, md.Traverses(types.NewSituation(types.NotRealized, types.NotRealized, types.EndpointIndependent, types.NotRealized)))
}
