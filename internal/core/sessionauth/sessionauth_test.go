package sessionauth

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/pkg/types"
)

type recordGate struct {
	mu        sync.Mutex
	allow     bool
	reserved  int
	released  int
	committed int
}

func (g *recordGate) Reserve(net.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserved++
	return g.allow
}

func (g *recordGate) Release(net.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
}

func (g *recordGate) Commit(net.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.committed++
	return g.allow
}

func newToken(t *testing.T) types.RaceToken {
	t.Helper()
	tok, err := types.NewRaceToken()
	require.NoError(t, err)
	return tok
}

func TestHandshake_Success(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	token := newToken(t)
	done := make(chan error, 1)
	go func() {
		done <- Respond(context.Background(), b, token, time.Second, nil)
	}()

	require.NoError(t, Initiate(context.Background(), a, token, time.Second, nil))
	require.NoError(t, <-done)
	t.Log("✅ 三消息握手完成")
}

func TestHandshake_TokenMismatch(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		err := Respond(context.Background(), b, newToken(t), time.Second, nil)
		b.Close()
		done <- err
	}()

	err := Initiate(context.Background(), a, newToken(t), time.Second, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, <-done, ErrTokenMismatch)
}

func TestHandshake_ResponderRejects(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	token := newToken(t)
	gate := &recordGate{allow: false}
	done := make(chan error, 1)
	go func() {
		err := Respond(context.Background(), b, token, time.Second, gate)
		b.Close()
		done <- err
	}()

	err := Initiate(context.Background(), a, token, time.Second, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, 1, gate.reserved)
	assert.Equal(t, 0, gate.released)
}

// TestHandshake_InitiatorSuperseded 发起方不提交时接收方超时并释放预留
func TestHandshake_InitiatorSuperseded(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	token := newToken(t)
	respGate := &recordGate{allow: true}
	done := make(chan error, 1)
	go func() {
		done <- Respond(context.Background(), b, token, 200*time.Millisecond, respGate)
	}()

	initGate := &recordGate{allow: false}
	err := Initiate(context.Background(), a, token, time.Second, initGate)
	assert.ErrorIs(t, err, ErrSuperseded)

	respErr := <-done
	assert.ErrorIs(t, respErr, context.DeadlineExceeded)
	assert.Equal(t, 1, respGate.reserved)
	assert.Equal(t, 1, respGate.released)
	assert.Equal(t, 0, respGate.committed)
}

func TestHandshake_ContextCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := Respond(ctx, b, newToken(t), 5*time.Second, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
