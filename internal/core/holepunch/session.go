package holepunch

import (
	"context"
	"net"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-natt/internal/core/sessionauth"
	"github.com/dep2p/go-natt/internal/util/reuseport"
	"github.com/dep2p/go-natt/pkg/types"
)

// raceResult 单槽交接的内容
type raceResult struct {
	conn net.Conn
	err  error
}

// session 一次竞速的共享状态
//
// 所有路径共享同一个 session；committed、pending、open 只在 mu 内读写。
type session struct {
	id        string
	token     types.RaceToken
	initiator bool
	cancel    context.CancelFunc

	mu        sync.Mutex
	committed bool
	winner    net.Conn
	pending   net.Conn
	open      map[net.Conn]struct{}
	ln        net.Listener

	result chan raceResult
}

var _ sessionauth.Gate = (*session)(nil)

func newSession(id string, token types.RaceToken, initiator bool, cancel context.CancelFunc) *session {
	return &session{
		id:        id,
		token:     token,
		initiator: initiator,
		cancel:    cancel,
		open:      make(map[net.Conn]struct{}),
		result:    make(chan raceResult, 1),
	}
}

// track 记录路径打开的套接字；会话已提交时直接关闭并返回 false
func (s *session) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		_ = reuseport.Abort(conn)
		return false
	}
	s.open[conn] = struct{}{}
	return true
}

// discard 关闭并移除一个落败或认证失败的套接字
func (s *session) discard(conn net.Conn) {
	s.mu.Lock()
	delete(s.open, conn)
	if s.pending == conn {
		s.pending = nil
	}
	s.mu.Unlock()
	_ = reuseport.Abort(conn)
}

// setListener 登记监听器，提交后登记的监听器立即关闭
func (s *session) setListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		_ = ln.Close()
		return false
	}
	s.ln = ln
	return true
}

func (s *session) isWinner(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner == conn
}

// ============================================================================
//                              sessionauth.Gate
// ============================================================================

// Reserve 接收方同一时刻只为一个套接字回复 ACK
func (s *session) Reserve(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed || (s.pending != nil && s.pending != conn) {
		return false
	}
	s.pending = conn
	return true
}

// Release 取消预留
func (s *session) Release(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == conn {
		s.pending = nil
	}
}

// Commit 提交赢家并停止其余路径
//
// 标记赢家、取消路径、关闭其余套接字和监听器在同一把锁内完成。
func (s *session) Commit(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return false
	}
	s.committed = true
	s.winner = conn
	s.pending = nil
	delete(s.open, conn)

	s.cancel()
	if err := s.closeLosersLocked(); err != nil {
		log.Debug("关闭落败套接字出错", "session", s.id, "err", err)
	}
	return true
}

// closeLosersLocked 关闭除赢家以外的所有套接字和监听器，调用方持有 mu
func (s *session) closeLosersLocked() error {
	var err error
	for c := range s.open {
		err = multierr.Append(err, reuseport.Abort(c))
		delete(s.open, c)
	}
	if s.ln != nil {
		err = multierr.Append(err, s.ln.Close())
		s.ln = nil
	}
	return err
}

// ============================================================================
//                              认证与交接
// ============================================================================

// authenticate 对路径得到的连接执行三消息认证
//
// 认证在独立于会话取消的上下文中进行：赢家在提交后仍要完成剩余消息，
// 落败者的套接字由 Commit 或 shutdown 关闭，从而中断其认证。
// 返回 true 表示该连接已成为结果。
func (s *session) authenticate(ctx context.Context, conn net.Conn, cfg Config) bool {
	actx := context.WithoutCancel(ctx)

	var err error
	if s.initiator {
		err = sessionauth.Initiate(actx, conn, s.token, cfg.AuthTimeout, s)
	} else {
		err = sessionauth.Respond(actx, conn, s.token, cfg.AuthTimeout, s)
	}

	if err == nil {
		s.result <- raceResult{conn: conn}
		return true
	}

	if s.isWinner(conn) {
		// 已提交但最后一条消息失败
		_ = reuseport.Abort(conn)
		s.result <- raceResult{err: err}
		return true
	}

	log.Debug("认证失败，丢弃套接字",
		"session", s.id,
		"remote", conn.RemoteAddr(),
		"err", err)
	s.discard(conn)
	return false
}

// shutdown 关闭会话中残留的全部套接字
func (s *session) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = true
	return s.closeLosersLocked()
}
