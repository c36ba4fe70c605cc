package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "hermes", c.App.Name)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, 10*time.Second, c.HTTP.ShutdownTimeout)
	assert.Equal(t, "config:engine", c.Redis.ConfigChannel)

	e := c.Engine
	assert.Equal(t, CurrentVersion, e.Version)
	assert.Equal(t, 60, e.ExecutionTF)
	assert.Equal(t, 50, e.Rigidity.Global)
	assert.True(t, e.AllowBuy)
	assert.True(t, e.AllowSell)
	assert.True(t, e.Relax.Auto)
	assert.Equal(t, 30.0, e.Relax.AfterMinutes)
	assert.Equal(t, 200, e.Gate.DivisorPeriod)
	assert.Equal(t, 50, e.Gate.DirectionalPeriod)
	assert.Equal(t, 3, e.Gate.SlopeLookback)
	assert.False(t, e.Gate.Enabled)
	require.NoError(t, c.Validate())
}

const legacyYAML = `
app:
  symbols: [BTCUSDT]
engine:
  rigidity: 70
  relax_minutes: 15
  auto_relax: false
  gate:
    enabled: true
    ema_divisor: 100
    ema_directional: 20
  strategies:
    emaCross:
      enabled: true
      guard_toggles:
        "2": true
        "0": true
        "1": false
      tuning:
        slope_min: 0.0004
        vol_mult: 1.5
    orb:
      enabled: false
`

func TestParse_UpgradesLegacyEngine(t *testing.T) {
	c, err := Parse([]byte(legacyYAML))
	require.NoError(t, err)
	e := c.Engine

	assert.Equal(t, CurrentVersion, e.Version)
	assert.Equal(t, 70, e.Rigidity.Global)
	assert.Equal(t, 15.0, e.Relax.AfterMinutes)
	assert.False(t, e.Relax.Auto)
	assert.True(t, e.Gate.Enabled)
	assert.Equal(t, 100, e.Gate.DivisorPeriod)
	assert.Equal(t, 20, e.Gate.DirectionalPeriod)

	assert.Equal(t, []int{0, 2}, e.Strategies["emaCross"].DisabledGuards)
	assert.Equal(t, map[string]any{"slopeMin": 0.0004, "volumeMult": 1.5}, e.Strategies["emaCross"].Tuning)
	assert.False(t, e.Enabled("orb"))
	assert.True(t, e.Enabled("emaCross"))
	assert.True(t, e.Enabled("retest"), "unlisted strategies are enabled")

	assert.Equal(t, []string{"BTCUSDT"}, c.App.Symbols)
	assert.Equal(t, "hermes", c.App.Name, "defaults survive a partial document")
}

func TestUpgrade_RejectsNewerVersion(t *testing.T) {
	_, err := Upgrade(map[string]any{"version": 9})
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestUpgrade_DoesNotModifyInput(t *testing.T) {
	in := map[string]any{
		"relax_minutes": 5,
		"strategies": map[string]any{
			"emaCross": map[string]any{"tuning": map[string]any{"slope_min": 0.1}},
		},
	}
	out, err := Upgrade(in)
	require.NoError(t, err)
	assert.Contains(t, in, "relax_minutes")
	tun := in["strategies"].(map[string]any)["emaCross"].(map[string]any)["tuning"].(map[string]any)
	assert.Contains(t, tun, "slope_min")
	assert.Equal(t, CurrentVersion, out["version"])
}

func TestUpgrade_CurrentKeysWin(t *testing.T) {
	out, err := Upgrade(map[string]any{
		"relax_minutes": 5,
		"relax":         map[string]any{"after_minutes": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, out["relax"].(map[string]any)["after_minutes"])
}

func TestParseEngine_JSON(t *testing.T) {
	e, err := ParseEngine([]byte(`{
  "version": 3,
  "priority": ["emaCross", "orb"],
  "rigidity": {"global": 80},
  "strategies": {"emaCross": {"rigidity": 20, "disabled_guards": [1]}},
  "relax": {"slope_min": null, "exempt": []}
}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"emaCross", "orb"}, e.Priority)

	rig := e.RigidityState()
	assert.Equal(t, 80, rig.Global)
	assert.Equal(t, 20, rig.Level("emaCross"))
	assert.Equal(t, 80, rig.Level("orb"))

	assert.Equal(t, map[int]bool{1: true}, e.Toggles()["emaCross"])

	vals := e.RelaxValues()
	assert.NotContains(t, vals, tuning.RelaxSlope, "null disables slope substitution")
	assert.Equal(t, 0.05, vals[tuning.RelaxGap])
	assert.Equal(t, 0.9, vals[tuning.RelaxVolume])
	assert.Empty(t, e.RelaxExempt())
}

func TestParseEngine_Invalid(t *testing.T) {
	_, err := ParseEngine([]byte(`{"version": 3, "rigidity": {"global": 140}}`))
	assert.Error(t, err)

	_, err = ParseEngine([]byte(`{"version": 3, "strategies": {"orb": {"rigidity": -1}}}`))
	assert.Error(t, err)

	_, err = ParseEngine([]byte(`not: [valid`))
	assert.Error(t, err)
}

func TestEngine_DefaultExempt(t *testing.T) {
	e := Default().Engine
	ex := e.RelaxExempt()
	assert.True(t, ex["orb"])
	assert.True(t, ex["doubleTop"])
	assert.True(t, ex["liquiditySweep"])
	assert.False(t, ex["emaCross"])
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hermes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(legacyYAML), 0o600))

	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("SYMBOLS", "ETHUSDT, SOLUSDT ,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", c.Redis.Addr)
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, c.App.Symbols)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "debug", c.App.LogLevel)
	assert.Equal(t, 70, c.Engine.Rigidity.Global)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_KafkaNeedsBrokers(t *testing.T) {
	c := Default()
	c.Kafka.Enabled = true
	assert.Error(t, c.Validate())
	c.Kafka.Brokers = []string{"k:9092"}
	assert.NoError(t, c.Validate())
}
