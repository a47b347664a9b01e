package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 12, cfg.Streaming.RenderDistance, "Дистанция прорисовки по умолчанию")
	assert.Equal(t, 2, cfg.Streaming.Hysteresis)
	assert.Equal(t, 4, cfg.Streaming.UploadBudget)
	assert.Equal(t, 32, cfg.Streaming.UnloadBudget)
	assert.Equal(t, 256, cfg.Streaming.UploadQueueSize)
	assert.Equal(t, 0.5, cfg.Streaming.DirectionBias)
	assert.GreaterOrEqual(t, cfg.Streaming.GenerationWorkers, 1)
	assert.GreaterOrEqual(t, cfg.Streaming.MeshingWorkers, 1)
	assert.Equal(t, 256<<20, cfg.Arena.CapacityBytes)
	assert.Equal(t, 3, cfg.Arena.FramesInFlight)
	assert.Len(t, cfg.LOD.Levels, 3)
	assert.NoError(t, cfg.Validate(), "Конфигурация по умолчанию должна быть валидной")
}

func TestConfig_EffectiveMeshRadius(t *testing.T) {
	s := StreamingConfig{RenderDistance: 10}
	assert.Equal(t, 10, s.EffectiveMeshRadius())

	s.MeshRadius = 6
	assert.Equal(t, 6, s.EffectiveMeshRadius())

	s.MeshRadius = 20
	assert.Equal(t, 10, s.EffectiveMeshRadius(), "Радиус мешинга не может превышать дистанцию прорисовки")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"нулевой радиус", func(c *Config) { c.Streaming.RenderDistance = 0 }, ErrInvalidRadius},
		{"отрицательный гистерезис", func(c *Config) { c.Streaming.Hysteresis = -1 }, ErrInvalidRadius},
		{"нулевой бюджет загрузки", func(c *Config) { c.Streaming.UploadBudget = 0 }, ErrInvalidBudget},
		{"нет воркеров", func(c *Config) { c.Streaming.MeshingWorkers = 0 }, ErrInvalidBudget},
		{"нет кадров в полёте", func(c *Config) { c.Arena.FramesInFlight = 0 }, ErrInvalidArena},
		{"уровень LOD вне диапазона", func(c *Config) { c.LOD.Levels[0].Level = 4 }, ErrInvalidLODLevel},
		{"повтор уровня LOD", func(c *Config) { c.LOD.Levels[1].Level = 1 }, ErrInvalidLODLevel},
		{"нулевой радиус LOD", func(c *Config) { c.LOD.Levels[2].Radius = 0 }, ErrInvalidRadius},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "ожидалась ошибка %v, получена %v", tt.want, err)
		})
	}
}

func TestConfig_ValidateSkipsDisabledLOD(t *testing.T) {
	cfg := Default()
	cfg.LOD.Enabled = false
	cfg.LOD.Levels = []LODLevelConfig{{Level: 9}}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamer.yaml")
	yamlData := `
world:
  seed: 42
streaming:
  render_distance: 6
  upload_budget: 8
lod:
  enabled: true
  levels:
    - level: 1
      radius: 10
      arena_bytes: 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.World.Seed)
	assert.Equal(t, 6, cfg.Streaming.RenderDistance)
	assert.Equal(t, 8, cfg.Streaming.UploadBudget)
	assert.Equal(t, 2, cfg.Streaming.Hysteresis, "Незаданные поля берутся из значений по умолчанию")
	require.Len(t, cfg.LOD.Levels, 1)
	assert.Equal(t, 10, cfg.LOD.Levels[0].Radius)
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  render_distance: -3\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestConfig_LoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Streaming, cfg.Streaming)
}

func TestServerConfig_DebugPortFallback(t *testing.T) {
	s := ServerConfig{DebugPort: 9001}
	assert.Equal(t, 9001, s.GetDebugPort())

	t.Setenv("CHUNKSTREAM_DEBUG_PORT", "9100")
	s.DebugPort = 0
	assert.Equal(t, 9100, s.GetDebugPort())

	t.Setenv("CHUNKSTREAM_DEBUG_PORT", "abc")
	assert.Equal(t, 8090, s.GetDebugPort())
}
