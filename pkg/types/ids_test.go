package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID(t *testing.T) {
	id := PeerID("12D3KooWTestPeer")
	assert.Equal(t, "12D3KooWTestPeer", id.String())
	assert.Equal(t, "12D3KooW", id.ShortString())
	assert.False(t, id.IsEmpty())

	assert.Equal(t, "short", PeerID("short").ShortString())
	assert.True(t, PeerID("").IsEmpty())
}

func TestTechniqueID_String(t *testing.T) {
	assert.Equal(t, "0x0003", TechniqueID(3).String())
	assert.Equal(t, "0xffff", TechniqueID(0xffff).String())
}

func TestRaceToken(t *testing.T) {
	a, err := NewRaceToken()
	require.NoError(t, err)
	b, err := NewRaceToken()
	require.NoError(t, err)

	assert.False(t, a.IsZero())
	assert.True(t, RaceToken{}.IsZero())
	assert.False(t, a.Equal(b), "两个随机令牌不应相同")
	assert.True(t, a.Equal(a))
	assert.Len(t, a.String(), RaceTokenSize*2)

	c, err := RaceTokenFromBytes(a[:])
	require.NoError(t, err)
	assert.True(t, a.Equal(c))

	_, err = RaceTokenFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidRaceToken)

	t.Log("✅ RaceToken 测试通过")
}

func TestControlMessage_Reply(t *testing.T) {
	req := &ControlMessage{
		Kind:          KindConnect,
		Class:         ClassRequest,
		TransactionID: [TransactionIDSize]byte{1, 2, 3},
		Source:        "peer-a",
		Target:        "peer-b",
		Technique:     3,
		Techniques:    []TechniqueID{1, 3},
	}
	assert.False(t, req.IsResponse())
	assert.True(t, req.Supports(3))
	assert.False(t, req.Supports(2))

	resp := req.Reply(ClassError)
	assert.True(t, resp.IsResponse())
	assert.Equal(t, req.TransactionID, resp.TransactionID)
	assert.Equal(t, KindConnect, resp.Kind)
	assert.Equal(t, PeerID("peer-b"), resp.Source)
	assert.Equal(t, PeerID("peer-a"), resp.Target)
	assert.Equal(t, TechniqueID(3), resp.Technique)
	assert.Nil(t, resp.Techniques)

	assert.Equal(t, "query_techniques", KindQueryTechniques.String())
	assert.Equal(t, "unknown", MessageKind(99).String())
	assert.Equal(t, "indication", ClassIndication.String())
}
