package reversal

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

func TestReversal_EndToEnd(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.RetryInterval = 20 * time.Millisecond

	accepted := make(chan net.Conn, 1)
	go func() {
		defer close(accepted)
		req, err := dst.Receive(ctx)
		if err != nil {
			return
		}
		conn, err := New(cfg, nil).CreateTargetSideConnection(ctx, req.Source, dst, req)
		if err != nil {
			return
		}
		accepted <- conn
	}()

	conn, err := New(cfg, nil).CreateSourceSideConnection(ctx, "peer-b", src)
	require.NoError(t, err)
	defer conn.Close()

	peer := <-accepted
	require.NotNil(t, peer)
	defer peer.Close()

	_, err = peer.Write([]byte("back"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "back", string(buf))
	t.Log("✅ 反向连接建立成功")
}

func TestReversal_TargetRejectsWithoutEndpoint(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		req, err := dst.Receive(ctx)
		if err != nil {
			errc <- err
			return
		}
		_, err = New(DefaultConfig(), nil).CreateTargetSideConnection(ctx, req.Source, dst, req)
		errc <- err
	}()

	_, err := src.Request(ctx, &types.ControlMessage{Kind: types.KindConnect, Technique: TechniqueID})
	var re *mediator.ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, mediator.CodeBadRequest, re.Code)
	assert.ErrorIs(t, <-errc, ErrNoEndpoint)
}

// TestReversal_TargetRetriesUntilCancel 源端不可达时目标端持续重试直到 ctx 结束
func TestReversal_TargetRetriesUntilCancel(t *testing.T) {
	src, dst := mediator.Pipe()
	defer src.Close()
	defer dst.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go func() {
		_, _ = src.Receive(ctx)
	}()

	cfg := DefaultConfig()
	cfg.RetryInterval = 20 * time.Millisecond
	req := &types.ControlMessage{Kind: types.KindConnect, Class: types.ClassRequest, Technique: TechniqueID, Public: dead}

	start := time.Now()
	_, err = New(cfg, nil).CreateTargetSideConnection(ctx, "peer-a", dst, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReversal_Metadata(t *testing.T) {
	md := New(DefaultConfig(), nil).Metadata()
	assert.Equal(t, TechniqueID, md.ID)
	assert.True(t, md.Traverses(types.NewSituation(types.NotRealized, types.NotRealized, types.AddressAndPortDependent, types.AddressAndPortDependent)))
	assert.False(t, md.Traverses(types.NewSituation(types.EndpointIndependent, types.NotRealized, types.NotRealized, types.NotRealized)))
}
