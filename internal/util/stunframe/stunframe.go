// Package stunframe 在字节流上收发 STUN 消息
//
// TCP 上的 STUN 消息没有额外分帧：20 字节头部中的长度字段给出属性区长度
// （RFC 5389 §7.2.2），据此读取完整消息。
package stunframe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pion/stun"
)

const headerSize = 20

var (
	// ErrNotSTUN 数据不是 STUN 消息
	ErrNotSTUN = errors.New("stunframe: not a STUN message")
)

// Read 从 r 读取一条完整的 STUN 消息
func Read(r io.Reader) (*stun.Message, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if !stun.IsMessage(hdr) {
		return nil, ErrNotSTUN
	}

	length := int(binary.BigEndian.Uint16(hdr[2:4]))
	raw := make([]byte, headerSize+length)
	copy(raw, hdr)
	if _, err := io.ReadFull(r, raw[headerSize:]); err != nil {
		return nil, fmt.Errorf("read attributes: %w", err)
	}

	m := &stun.Message{Raw: raw}
	if err := m.Decode(); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return m, nil
}

// Write 将消息写入 w
func Write(w io.Writer, m *stun.Message) error {
	_, err := w.Write(m.Raw)
	return err
}

// ReadContext 带截止时间读取
//
// 截止时间取 ctx 截止时间与 timeout 中较早者；timeout 为 0 表示不额外限制。
// ctx 被取消时立即中断读取。
func ReadContext(ctx context.Context, conn net.Conn, timeout time.Duration) (*stun.Message, error) {
	stop := bindDeadline(ctx, conn, timeout, conn.SetReadDeadline)
	defer stop()

	m, err := Read(conn)
	if err != nil {
		return nil, contextError(ctx, err)
	}
	return m, nil
}

// WriteContext 带截止时间写入
func WriteContext(ctx context.Context, conn net.Conn, timeout time.Duration, m *stun.Message) error {
	stop := bindDeadline(ctx, conn, timeout, conn.SetWriteDeadline)
	defer stop()

	if err := Write(conn, m); err != nil {
		return contextError(ctx, err)
	}
	return nil
}

// contextError ctx 已结束或截止时间已过时返回 ctx 的错误
//
// 连接截止时间与 ctx 计时器同时到期，ctx.Err() 可能稍晚才变为非空。
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}

// bindDeadline 设置截止时间并在 ctx 取消时提前触发，返回的函数清除截止时间
func bindDeadline(ctx context.Context, conn net.Conn, timeout time.Duration, set func(time.Time) error) func() {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = set(deadline)

	stopAfter := context.AfterFunc(ctx, func() {
		_ = set(time.Now())
	})
	return func() {
		stopAfter()
		_ = set(time.Time{})
	}
}
