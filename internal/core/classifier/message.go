package classifier

import (
	"errors"
	"net"

	"github.com/pion/stun"
)

// RFC 5780 属性
const (
	attrChangeRequest  = stun.AttrType(0x0003)
	attrResponseOrigin = stun.AttrType(0x802b)
	attrOtherAddress   = stun.AttrType(0x802c)
)

// CHANGE-REQUEST 标志位
const (
	flagChangeIP   = 0x04
	flagChangePort = 0x02
)

// bindingIndication Binding 指示，请求服务器按 CHANGE-REQUEST 回连
var bindingIndication = stun.NewType(stun.MethodBinding, stun.ClassIndication)

var errNoMappedAddress = errors.New("classifier: no mapped address in response")

// ============================================================================
//                              ChangeRequest
// ============================================================================

// ChangeRequest STUN CHANGE-REQUEST 属性
type ChangeRequest struct {
	ChangeIP   bool
	ChangePort bool
}

// AddTo 实现 stun.Setter
func (c ChangeRequest) AddTo(m *stun.Message) error {
	var flags byte
	if c.ChangeIP {
		flags |= flagChangeIP
	}
	if c.ChangePort {
		flags |= flagChangePort
	}
	m.Add(attrChangeRequest, []byte{0, 0, 0, flags})
	return nil
}

// GetFrom 实现 stun.Getter，未携带时为零值
func (c *ChangeRequest) GetFrom(m *stun.Message) error {
	v, err := m.Get(attrChangeRequest)
	if errors.Is(err, stun.ErrAttributeNotFound) {
		*c = ChangeRequest{}
		return nil
	}
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return stun.ErrAttributeSizeInvalid
	}
	c.ChangeIP = v[3]&flagChangeIP != 0
	c.ChangePort = v[3]&flagChangePort != 0
	return nil
}

// String 返回可读形式
func (c ChangeRequest) String() string {
	switch {
	case c.ChangeIP && c.ChangePort:
		return "change-ip-port"
	case c.ChangeIP:
		return "change-ip"
	case c.ChangePort:
		return "change-port"
	default:
		return "no-change"
	}
}

// ============================================================================
//                              地址提取
// ============================================================================

// mappedAddress 提取映射地址，优先 XOR-MAPPED-ADDRESS，回退 MAPPED-ADDRESS
func mappedAddress(m *stun.Message) (*net.TCPAddr, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(m); err == nil {
		return &net.TCPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
	}

	var addr stun.MappedAddress
	if err := addr.GetFrom(m); err == nil {
		return &net.TCPAddr{IP: addr.IP, Port: addr.Port}, nil
	}

	return nil, errNoMappedAddress
}

// otherAddress 提取 OTHER-ADDRESS，未携带返回 nil
func otherAddress(m *stun.Message) *net.TCPAddr {
	var addr stun.MappedAddress
	if err := addr.GetFromAs(m, attrOtherAddress); err != nil {
		return nil
	}
	return &net.TCPAddr{IP: addr.IP, Port: addr.Port}
}

// sameEndpoint IP 与端口是否相同
func sameEndpoint(a, b *net.TCPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
