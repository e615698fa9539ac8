package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natt/internal/core/orchestrator"
	"github.com/dep2p/go-natt/pkg/types"
)

// TestNewConfig 默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.False(t, cfg.Classifier.Enabled())
	assert.True(t, cfg.HolePunch.Enable)
	assert.True(t, cfg.Direct.Enable)
	assert.True(t, cfg.Reversal.Enable)
	assert.False(t, cfg.Metrics.Enabled)

	t.Log("✅ NewConfig 测试通过")
}

func TestConfig_ValidateNil(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrNilConfig)
}

func TestConfig_ValidateErrors(t *testing.T) {
	t.Run("ClassifierServer", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Classifier.Server = "no-port"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ClassifyPort", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Orchestrator.ClassifyPort = 70000
		assert.ErrorIs(t, cfg.Validate(), orchestrator.ErrInvalidPort)
	})

	t.Run("DirectListenAddr", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Direct.ListenAddr = "bad"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ReversalAdvertiseAddr", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Reversal.AdvertiseAddr = "1.2.3.4"
		assert.Error(t, cfg.Validate())
	})
}

// TestFromJSON 部分字段覆盖默认值
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"classifier": {"server": "203.0.113.10:3478", "cache_ttl": "5m"},
		"orchestrator": {"peer_id": "peer-a", "technique_timeout": "200ms"},
		"holepunch": {"enable": false, "retry_interval": 50000000},
		"metrics": {"enabled": true}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "203.0.113.10:3478", cfg.Classifier.Server)
	assert.Equal(t, 5*time.Minute, cfg.Classifier.CacheTTL.Std())
	assert.Equal(t, DefaultClassifierConfig().DialTimeout, cfg.Classifier.DialTimeout)

	oc := cfg.Orchestrator.Build()
	assert.Equal(t, types.PeerID("peer-a"), oc.PeerID)
	assert.Equal(t, 200*time.Millisecond, oc.TechniqueTimeout)
	assert.Equal(t, orchestrator.DefaultConfig().KeepAliveInterval, oc.KeepAliveInterval)

	assert.False(t, cfg.HolePunch.Enable)
	assert.Equal(t, 50*time.Millisecond, cfg.HolePunch.Build().RetryInterval)
	assert.True(t, cfg.Metrics.Enabled)

	_, err = FromJSON([]byte(`{"orchestrator": {"query_timeout": "soon"}}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Classifier.Server = "127.0.0.1:3478"
	cfg.Direct.AdvertiseAddr = "198.51.100.7:4001"
	data, err := cfg.ToJSON()
	require.NoError(t, err)

	path := filepath.Join(dir, "natt.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"orchestrator": {"classify_port": -1}}`), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, orchestrator.ErrInvalidPort)
}

func TestBuild(t *testing.T) {
	cfg := NewConfig()

	cc := cfg.Classifier.Build()
	assert.Equal(t, cfg.Classifier.FilteringTimeout.Std(), cc.FilteringTimeout)
	assert.Equal(t, cfg.Classifier.CacheSize, cc.CacheSize)

	dc := cfg.Direct.Build()
	assert.Equal(t, "0.0.0.0:0", dc.ListenAddr)

	rc := cfg.Reversal.Build()
	assert.Equal(t, cfg.Reversal.RetryInterval.Std(), rc.RetryInterval)
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"d":"1m30s"}`), &v))
	assert.Equal(t, 90*time.Second, v.D.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"d":1000}`), &v))
	assert.Equal(t, time.Microsecond, v.D.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"d":""}`), &v))
	assert.Zero(t, v.D)

	assert.Error(t, json.Unmarshal([]byte(`{"d":true}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"d":"fast"}`), &v))

	out, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(out))
}
