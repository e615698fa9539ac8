package classifier

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// fakeProber 按脚本返回结果并统计网络调用次数
type fakeProber struct {
	mu        sync.Mutex
	binds     []bindStep
	callbacks []callbackStep

	bindCalls     int
	callbackCalls int
	servers       []string
	changes       []ChangeRequest
}

type bindStep struct {
	res *BindingResult
	err error
}

type callbackStep struct {
	ok  bool
	err error
}

func (f *fakeProber) Bind(_ context.Context, _ int, server *net.TCPAddr) (*BindingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers = append(f.servers, server.String())
	if f.bindCalls >= len(f.binds) {
		f.bindCalls++
		return nil, errors.New("unexpected bind")
	}
	step := f.binds[f.bindCalls]
	f.bindCalls++
	return step.res, step.err
}

func (f *fakeProber) AwaitCallback(_ context.Context, _ int, _ *net.TCPAddr, change ChangeRequest, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
	if f.callbackCalls >= len(f.callbacks) {
		f.callbackCalls++
		return false, errors.New("unexpected callback")
	}
	step := f.callbacks[f.callbackCalls]
	f.callbackCalls++
	return step.ok, step.err
}

func addr(s string) *net.TCPAddr {
	a, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	local     = addr("192.168.1.10:40000")
	otherAddr = addr("203.0.113.2:3479")
)

func newTestClassifier(t *testing.T, p Prober) *Classifier {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server = "203.0.113.1:3478"
	c, err := New(cfg, WithProber(p))
	require.NoError(t, err)
	return c
}

func binding(mapped string, other *net.TCPAddr) bindStep {
	return bindStep{res: &BindingResult{Local: local, Mapped: addr(mapped), Other: other}}
}

// ============================================================================
//                              过滤测试
// ============================================================================

// TestFiltering_NoOtherAddress 响应无备用地址 ⇒ DontCare，且不再有网络调用
func TestFiltering_NoOtherAddress(t *testing.T) {
	p := &fakeProber{binds: []bindStep{binding("198.51.100.7:50000", nil)}}
	c := newTestClassifier(t, p)

	assert.Equal(t, types.DontCare, c.Filtering(context.Background(), 40000))
	assert.Equal(t, 1, p.bindCalls)
	assert.Equal(t, 0, p.callbackCalls)

	t.Log("✅ 无 OTHER-ADDRESS 时停止")
}

func TestFiltering_Cascade(t *testing.T) {
	tests := []struct {
		name      string
		callbacks []callbackStep
		want      types.NATFeatureRealization
		calls     int
	}{
		{"endpoint independent", []callbackStep{{ok: true}}, types.EndpointIndependent, 1},
		{"address dependent", []callbackStep{{}, {ok: true}}, types.AddressDependent, 2},
		{"address and port dependent", []callbackStep{{}, {}, {ok: true}}, types.AddressAndPortDependent, 3},
		{"connection dependent", []callbackStep{{}, {}, {}}, types.ConnectionDependent, 3},
		{"error downgrades", []callbackStep{{}, {err: errors.New("listen failed")}}, types.DontCare, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{
				binds:     []bindStep{binding("198.51.100.7:50000", otherAddr)},
				callbacks: tt.callbacks,
			}
			c := newTestClassifier(t, p)

			assert.Equal(t, tt.want, c.Filtering(context.Background(), 40000))
			assert.Equal(t, tt.calls, p.callbackCalls)
		})
	}
}

// TestFiltering_ChangeRequestOrder 三个阶段的 CHANGE-REQUEST 顺序
func TestFiltering_ChangeRequestOrder(t *testing.T) {
	p := &fakeProber{
		binds:     []bindStep{binding("198.51.100.7:50000", otherAddr)},
		callbacks: []callbackStep{{}, {}, {}},
	}
	c := newTestClassifier(t, p)
	c.Filtering(context.Background(), 40000)

	assert.Equal(t, []ChangeRequest{
		{ChangeIP: true, ChangePort: true},
		{ChangePort: true},
		{},
	}, p.changes)
}

func TestFiltering_BindError(t *testing.T) {
	p := &fakeProber{binds: []bindStep{{err: errors.New("connection refused")}}}
	c := newTestClassifier(t, p)

	assert.Equal(t, types.DontCare, c.Filtering(context.Background(), 40000))
	assert.Equal(t, 0, p.callbackCalls)
}

// ============================================================================
//                              映射测试
// ============================================================================

// TestMapping_NotRealized 映射地址等于本地地址 ⇒ NotRealized，且不再有网络调用
func TestMapping_NotRealized(t *testing.T) {
	p := &fakeProber{binds: []bindStep{binding(local.String(), otherAddr)}}
	c := newTestClassifier(t, p)

	assert.Equal(t, types.NotRealized, c.Mapping(context.Background(), 40000))
	assert.Equal(t, 1, p.bindCalls)
	assert.Equal(t, 0, p.callbackCalls)

	t.Log("✅ 无 NAT 时停止")
}

func TestMapping_Cascade(t *testing.T) {
	tests := []struct {
		name  string
		binds []bindStep
		want  types.NATFeatureRealization
	}{
		{
			name: "endpoint independent",
			binds: []bindStep{
				binding("198.51.100.7:50000", otherAddr),
				binding("198.51.100.7:50000", nil),
			},
			want: types.EndpointIndependent,
		},
		{
			name: "address dependent",
			binds: []bindStep{
				binding("198.51.100.7:50000", otherAddr),
				binding("198.51.100.7:50001", nil),
				binding("198.51.100.7:50001", nil),
			},
			want: types.AddressDependent,
		},
		{
			name: "address and port dependent",
			binds: []bindStep{
				binding("198.51.100.7:50000", otherAddr),
				binding("198.51.100.7:50001", nil),
				binding("198.51.100.7:50002", nil),
				binding("198.51.100.7:50000", nil),
			},
			want: types.AddressAndPortDependent,
		},
		{
			name: "connection dependent",
			binds: []bindStep{
				binding("198.51.100.7:50000", otherAddr),
				binding("198.51.100.7:50001", nil),
				binding("198.51.100.7:50002", nil),
				binding("198.51.100.7:50003", nil),
			},
			want: types.ConnectionDependent,
		},
		{
			name: "no other address",
			binds: []bindStep{
				binding("198.51.100.7:50000", nil),
			},
			want: types.DontCare,
		},
		{
			name: "error in TestIII",
			binds: []bindStep{
				binding("198.51.100.7:50000", otherAddr),
				binding("198.51.100.7:50001", nil),
				{err: errors.New("reset")},
			},
			want: types.DontCare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{binds: tt.binds}
			c := newTestClassifier(t, p)

			assert.Equal(t, tt.want, c.Mapping(context.Background(), 40000))
			assert.Equal(t, len(tt.binds), p.bindCalls)
		})
	}
}

// TestMapping_TargetsOfEachTest TestII..TestIV 的目标地址
func TestMapping_TargetsOfEachTest(t *testing.T) {
	p := &fakeProber{binds: []bindStep{
		binding("198.51.100.7:50000", otherAddr),
		binding("198.51.100.7:50001", nil),
		binding("198.51.100.7:50002", nil),
		binding("198.51.100.7:50000", nil),
	}}
	c := newTestClassifier(t, p)
	c.Mapping(context.Background(), 40000)

	assert.Equal(t, []string{
		"203.0.113.1:3478",
		"203.0.113.2:3478",
		"203.0.113.2:3479",
		"203.0.113.1:3478",
	}, p.servers)
}

// ============================================================================
//                              分类与缓存
// ============================================================================

func TestClassify_Cache(t *testing.T) {
	p := &fakeProber{
		binds: []bindStep{
			binding("198.51.100.7:50000", otherAddr),
			binding("198.51.100.7:50000", nil),
			binding("198.51.100.7:50000", otherAddr),
		},
		callbacks: []callbackStep{{ok: true}},
	}
	cfg := DefaultConfig()
	cfg.Server = "203.0.113.1:3478"
	cfg.CacheTTL = time.Minute
	c, err := New(cfg, WithProber(p))
	require.NoError(t, err)

	want := types.NATBehavior{Mapping: types.EndpointIndependent, Filtering: types.EndpointIndependent}
	assert.Equal(t, want, c.Classify(context.Background(), 40000))
	assert.Equal(t, want, c.Classify(context.Background(), 40000))
	assert.Equal(t, 3, p.bindCalls, "第二次应命中缓存")

	c.Invalidate()
	assert.Equal(t, types.UnknownBehavior(), c.Classify(context.Background(), 40000))
}

func TestDiscover(t *testing.T) {
	p := &fakeProber{binds: []bindStep{binding("198.51.100.7:50000", nil)}}
	c := newTestClassifier(t, p)

	eps, err := c.Discover(context.Background(), 40000)
	require.NoError(t, err)
	assert.Equal(t, local, eps.Private)
	assert.Equal(t, "198.51.100.7:50000", eps.Public.String())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoServer)
	assert.Equal(t, DefaultConfig().FilteringTimeout, cfg.FilteringTimeout)

	cfg.Server = "no-port"
	assert.Error(t, cfg.Validate())

	cfg.Server = "127.0.0.1:3478"
	assert.NoError(t, cfg.Validate())
}

// ============================================================================
//                              消息
// ============================================================================

func TestChangeRequest_RoundTrip(t *testing.T) {
	for _, cr := range []ChangeRequest{{}, {ChangeIP: true}, {ChangePort: true}, {ChangeIP: true, ChangePort: true}} {
		m, err := stun.Build(stun.TransactionID, bindingIndication, cr)
		require.NoError(t, err)

		decoded := &stun.Message{Raw: m.Raw}
		require.NoError(t, decoded.Decode())

		var got ChangeRequest
		require.NoError(t, got.GetFrom(decoded))
		assert.Equal(t, cr, got, cr.String())
	}
}
