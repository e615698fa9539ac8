package stunframe

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWrite(t *testing.T) {
	m, err := stun.Build(stun.TransactionID, stun.BindingRequest,
		&stun.XORMappedAddress{IP: net.IPv4(10, 0, 0, 1), Port: 4000})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	require.NoError(t, Write(&buf, m))

	for i := 0; i < 2; i++ {
		got, err := Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, m.TransactionID, got.TransactionID)
		assert.Equal(t, stun.BindingRequest, got.Type)

		var addr stun.XORMappedAddress
		require.NoError(t, addr.GetFrom(got))
		assert.Equal(t, 4000, addr.Port)
	}
}

func TestRead_NotSTUN(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 20)))
	assert.ErrorIs(t, err, ErrNotSTUN)
}

func TestReadContext_Cancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := ReadContext(ctx, a, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReadContext_Timeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, err := ReadContext(context.Background(), a, 50*time.Millisecond)
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}
