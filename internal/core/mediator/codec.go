package mediator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/pion/stun"

	"github.com/dep2p/go-natt/pkg/types"
)

// ============================================================================
//                              方法与属性
// ============================================================================

// methodBase 控制消息方法起点，方法 = methodBase + MessageKind
const methodBase = 0x0A0

// 自定义属性，位于 comprehension-optional 区间
const (
	attrSource     = stun.AttrType(0xC001)
	attrTarget     = stun.AttrType(0xC002)
	attrBehavior   = stun.AttrType(0xC003)
	attrTechniques = stun.AttrType(0xC004)
	attrTechnique  = stun.AttrType(0xC005)
	attrPublic     = stun.AttrType(0xC006)
	attrPrivate    = stun.AttrType(0xC007)
	attrToken      = stun.AttrType(0xC008)
)

var classToSTUN = map[types.MessageClass]stun.MessageClass{
	types.ClassRequest:    stun.ClassRequest,
	types.ClassIndication: stun.ClassIndication,
	types.ClassSuccess:    stun.ClassSuccessResponse,
	types.ClassError:      stun.ClassErrorResponse,
}

// ============================================================================
//                              编码
// ============================================================================

// Encode 将控制消息编码为 STUN 消息
func Encode(msg *types.ControlMessage) (*stun.Message, error) {
	if msg.Kind < types.KindRegister || msg.Kind > types.KindConnect {
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownMessage, msg.Kind)
	}
	class, ok := classToSTUN[msg.Class]
	if !ok {
		return nil, fmt.Errorf("%w: class %d", ErrUnknownMessage, msg.Class)
	}

	m := stun.New()
	m.Type = stun.NewType(stun.Method(methodBase+uint16(msg.Kind)), class)
	m.TransactionID = msg.TransactionID
	m.WriteHeader()

	if msg.Source != "" {
		m.Add(attrSource, []byte(msg.Source))
	}
	if msg.Target != "" {
		m.Add(attrTarget, []byte(msg.Target))
	}
	if msg.HasBehavior {
		m.Add(attrBehavior, []byte{byte(msg.Behavior.Mapping), byte(msg.Behavior.Filtering)})
	}
	if msg.Techniques != nil {
		v := make([]byte, 2*len(msg.Techniques))
		for i, id := range msg.Techniques {
			binary.BigEndian.PutUint16(v[2*i:], uint16(id))
		}
		m.Add(attrTechniques, v)
	}
	if msg.Technique != 0 {
		v := make([]byte, 2)
		binary.BigEndian.PutUint16(v, uint16(msg.Technique))
		m.Add(attrTechnique, v)
	}
	if err := addEndpoint(m, attrPublic, msg.Public); err != nil {
		return nil, err
	}
	if err := addEndpoint(m, attrPrivate, msg.Private); err != nil {
		return nil, err
	}
	if !msg.Token.IsZero() {
		m.Add(attrToken, msg.Token[:])
	}
	if msg.Class == types.ClassError {
		code := msg.ErrorCode
		if code == 0 {
			code = int(stun.CodeServerError)
		}
		ec := stun.ErrorCodeAttribute{Code: stun.ErrorCode(code), Reason: []byte(msg.ErrorReason)}
		if err := ec.AddTo(m); err != nil {
			return nil, fmt.Errorf("mediator: encode error code: %w", err)
		}
	}

	return m, nil
}

func addEndpoint(m *stun.Message, t stun.AttrType, addr *net.TCPAddr) error {
	if addr == nil {
		return nil
	}
	xa := stun.XORMappedAddress{IP: addr.IP, Port: addr.Port}
	if err := xa.AddToAs(m, t); err != nil {
		return fmt.Errorf("mediator: encode endpoint: %w", err)
	}
	return nil
}

// ============================================================================
//                              解码
// ============================================================================

// Decode 将 STUN 消息解码为控制消息
func Decode(m *stun.Message) (*types.ControlMessage, error) {
	method := uint16(m.Type.Method)
	if method <= methodBase || method > methodBase+uint16(types.KindConnect) {
		return nil, fmt.Errorf("%w: method 0x%03x", ErrUnknownMessage, method)
	}

	msg := &types.ControlMessage{
		Kind:          types.MessageKind(method - methodBase),
		TransactionID: m.TransactionID,
	}
	for class, sc := range classToSTUN {
		if sc == m.Type.Class {
			msg.Class = class
		}
	}

	if v, ok := optional(m, attrSource); ok {
		msg.Source = types.PeerID(v)
	}
	if v, ok := optional(m, attrTarget); ok {
		msg.Target = types.PeerID(v)
	}
	if v, ok := optional(m, attrBehavior); ok {
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: behavior", ErrMalformedMessage)
		}
		b := types.NATBehavior{
			Mapping:   types.NATFeatureRealization(v[0]),
			Filtering: types.NATFeatureRealization(v[1]),
		}
		if !b.Mapping.Valid() || !b.Filtering.Valid() {
			return nil, fmt.Errorf("%w: behavior out of range", ErrMalformedMessage)
		}
		msg.Behavior, msg.HasBehavior = b, true
	}
	if v, ok := optional(m, attrTechniques); ok {
		if len(v)%2 != 0 {
			return nil, fmt.Errorf("%w: technique list", ErrMalformedMessage)
		}
		msg.Techniques = make([]types.TechniqueID, len(v)/2)
		for i := range msg.Techniques {
			msg.Techniques[i] = types.TechniqueID(binary.BigEndian.Uint16(v[2*i:]))
		}
	}
	if v, ok := optional(m, attrTechnique); ok {
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: technique", ErrMalformedMessage)
		}
		msg.Technique = types.TechniqueID(binary.BigEndian.Uint16(v))
	}

	var err error
	if msg.Public, err = getEndpoint(m, attrPublic); err != nil {
		return nil, err
	}
	if msg.Private, err = getEndpoint(m, attrPrivate); err != nil {
		return nil, err
	}

	if v, ok := optional(m, attrToken); ok {
		token, err := types.RaceTokenFromBytes(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		msg.Token = token
	}

	if msg.Class == types.ClassError {
		var ec stun.ErrorCodeAttribute
		if err := ec.GetFrom(m); err == nil {
			msg.ErrorCode = int(ec.Code)
			msg.ErrorReason = string(ec.Reason)
		}
	}

	return msg, nil
}

func optional(m *stun.Message, t stun.AttrType) ([]byte, bool) {
	v, err := m.Get(t)
	if err != nil {
		return nil, false
	}
	return v, true
}

func getEndpoint(m *stun.Message, t stun.AttrType) (*net.TCPAddr, error) {
	var xa stun.XORMappedAddress
	err := xa.GetFromAs(m, t)
	if errors.Is(err, stun.ErrAttributeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrMalformedMessage, err)
	}
	return &net.TCPAddr{IP: xa.IP, Port: xa.Port}, nil
}
