// Package sessionauth 实现套接字归属会话的三消息认证
//
// 发起方发送携带令牌的 AUTH，接收方校验令牌后回复 ACK，
// 发起方再回复 ACK2 确认。只有完成全部三条消息的套接字才算认证通过。
//
// 消息使用 STUN 帧：方法 0x0B0，AUTH 为请求、ACK 为成功响应、ACK2 为指示，
// 三者共用同一事务 ID，令牌放在自定义属性中。
//
// 令牌只用于区分并发打开的套接字属于哪个会话，不提供保密性。
package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"

	"github.com/dep2p/go-natt/internal/util/stunframe"
	"github.com/dep2p/go-natt/pkg/types"
)

const (
	methodAuth = stun.Method(0x0B0)
	attrToken  = stun.AttrType(0xC0A1)
)

var (
	typeAuth = stun.NewType(methodAuth, stun.ClassRequest)
	typeAck  = stun.NewType(methodAuth, stun.ClassSuccessResponse)
	typeAck2 = stun.NewType(methodAuth, stun.ClassIndication)
)

var (
	// ErrTokenMismatch 令牌不匹配
	ErrTokenMismatch = errors.New("sessionauth: token mismatch")

	// ErrUnexpectedMessage 收到的消息类型或事务不符合预期
	ErrUnexpectedMessage = errors.New("sessionauth: unexpected message")

	// ErrSuperseded 会话已由其它套接字占用或提交
	ErrSuperseded = errors.New("sessionauth: superseded by another socket")
)

// Gate 协调同一会话中多个并发认证的套接字
//
// 所有方法都可能被多个 goroutine 并发调用。
type Gate interface {
	// Reserve 接收方在回复 ACK 前调用，返回 false 表示拒绝该套接字
	Reserve(conn net.Conn) bool

	// Release 接收方在预留之后认证失败时调用
	Release(conn net.Conn)

	// Commit 发起方收到 ACK 后、接收方收到 ACK2 后调用；返回 false 表示已有赢家
	Commit(conn net.Conn) bool
}

// openGate 不做任何限制
type openGate struct{}

func (openGate) Reserve(net.Conn) bool { return true }
func (openGate) Release(net.Conn)      {}
func (openGate) Commit(net.Conn) bool  { return true }

// ============================================================================
//                              发起方
// ============================================================================

// Initiate 作为发起方认证 conn
//
// gate 为 nil 时不做限制。timeout 限制整个握手。
func Initiate(ctx context.Context, conn net.Conn, token types.RaceToken, timeout time.Duration, gate Gate) error {
	if gate == nil {
		gate = openGate{}
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	auth, err := stun.Build(stun.TransactionID, typeAuth, tokenSetter(token))
	if err != nil {
		return err
	}
	if err := stunframe.WriteContext(ctx, conn, 0, auth); err != nil {
		return fmt.Errorf("sessionauth: send auth: %w", err)
	}

	ack, err := stunframe.ReadContext(ctx, conn, 0)
	if err != nil {
		return fmt.Errorf("sessionauth: read ack: %w", err)
	}
	if ack.Type != typeAck || ack.TransactionID != auth.TransactionID {
		return ErrUnexpectedMessage
	}
	if err := checkToken(ack, token); err != nil {
		return err
	}

	if !gate.Commit(conn) {
		return ErrSuperseded
	}

	ack2, err := stun.Build(stun.NewTransactionIDSetter(auth.TransactionID), typeAck2)
	if err != nil {
		return err
	}
	if err := stunframe.WriteContext(ctx, conn, 0, ack2); err != nil {
		return fmt.Errorf("sessionauth: send ack2: %w", err)
	}
	return nil
}

// ============================================================================
//                              接收方
// ============================================================================

// Respond 作为接收方认证 conn
//
// gate 为 nil 时不做限制。timeout 限制整个握手。
func Respond(ctx context.Context, conn net.Conn, token types.RaceToken, timeout time.Duration, gate Gate) (err error) {
	if gate == nil {
		gate = openGate{}
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	auth, err := stunframe.ReadContext(ctx, conn, 0)
	if err != nil {
		return fmt.Errorf("sessionauth: read auth: %w", err)
	}
	if auth.Type != typeAuth {
		return ErrUnexpectedMessage
	}
	if err := checkToken(auth, token); err != nil {
		return err
	}

	if !gate.Reserve(conn) {
		return ErrSuperseded
	}
	committed := false
	defer func() {
		if !committed {
			gate.Release(conn)
		}
	}()

	ack, err := stun.Build(stun.NewTransactionIDSetter(auth.TransactionID), typeAck, tokenSetter(token))
	if err != nil {
		return err
	}
	if err := stunframe.WriteContext(ctx, conn, 0, ack); err != nil {
		return fmt.Errorf("sessionauth: send ack: %w", err)
	}

	ack2, err := stunframe.ReadContext(ctx, conn, 0)
	if err != nil {
		return fmt.Errorf("sessionauth: read ack2: %w", err)
	}
	if ack2.Type != typeAck2 || ack2.TransactionID != auth.TransactionID {
		return ErrUnexpectedMessage
	}

	if !gate.Commit(conn) {
		return ErrSuperseded
	}
	committed = true
	return nil
}

// ============================================================================
//                              辅助函数
// ============================================================================

type tokenSetter types.RaceToken

func (t tokenSetter) AddTo(m *stun.Message) error {
	m.Add(attrToken, t[:])
	return nil
}

func checkToken(m *stun.Message, token types.RaceToken) error {
	v, err := m.Get(attrToken)
	if err != nil {
		return ErrTokenMismatch
	}
	got, err := types.RaceTokenFromBytes(v)
	if err != nil || !got.Equal(token) {
		return ErrTokenMismatch
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
