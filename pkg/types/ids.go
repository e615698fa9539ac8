package types

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 在中介服务器上注册的节点标识
type PeerID string

// String 返回字符串表示
func (id PeerID) String() string {
	return string(id)
}

// IsEmpty 是否为空
func (id PeerID) IsEmpty() bool {
	return id == ""
}

// ShortString 返回前 8 个字符，用于日志
func (id PeerID) ShortString() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// ============================================================================
//                              TechniqueID - 技术标识
// ============================================================================

// TechniqueID 穿透技术的协议层数字标识
type TechniqueID uint16

// String 返回十六进制表示
func (id TechniqueID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

// ============================================================================
//                              RaceToken - 竞速令牌
// ============================================================================

// RaceTokenSize 令牌长度（128 位）
const RaceTokenSize = 16

// ErrInvalidRaceToken 令牌长度错误
var ErrInvalidRaceToken = errors.New("invalid race token: must be 16 bytes")

// RaceToken 连接发起方生成的共享随机值
//
// 仅用于识别并发打开的套接字属于哪个会话，不提供保密性。
type RaceToken [RaceTokenSize]byte

// NewRaceToken 生成随机令牌
func NewRaceToken() (RaceToken, error) {
	var t RaceToken
	if _, err := rand.Read(t[:]); err != nil {
		return RaceToken{}, fmt.Errorf("generate race token: %w", err)
	}
	return t, nil
}

// RaceTokenFromBytes 从字节切片构造令牌
func RaceTokenFromBytes(b []byte) (RaceToken, error) {
	var t RaceToken
	if len(b) != RaceTokenSize {
		return t, ErrInvalidRaceToken
	}
	copy(t[:], b)
	return t, nil
}

// IsZero 是否为全零（未设置）
func (t RaceToken) IsZero() bool {
	return t == RaceToken{}
}

// Equal 常量时间比较
func (t RaceToken) Equal(other RaceToken) bool {
	return subtle.ConstantTimeCompare(t[:], other[:]) == 1
}

// String 返回十六进制表示
func (t RaceToken) String() string {
	return hex.EncodeToString(t[:])
}
