package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Ошибки валидации конфигурации
var (
	ErrInvalidRadius   = errors.New("некорректный радиус")
	ErrInvalidBudget   = errors.New("некорректный бюджет")
	ErrInvalidArena    = errors.New("некорректные параметры арены")
	ErrInvalidLODLevel = errors.New("некорректный уровень LOD")
)

// Config корневая структура конфигурации стримера.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Streaming StreamingConfig `yaml:"streaming"`
	Arena     ArenaConfig     `yaml:"arena"`
	LOD       LODConfig       `yaml:"lod"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorldConfig параметры генерации мира
type WorldConfig struct {
	Seed         int64  `yaml:"seed"`
	SeaLevel     int    `yaml:"sea_level"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	CacheDir     string `yaml:"cache_dir"`
}

// StreamingConfig параметры конвейера полной детализации
type StreamingConfig struct {
	RenderDistance    int     `yaml:"render_distance"`
	Hysteresis        int     `yaml:"hysteresis"`
	MeshRadius        int     `yaml:"mesh_radius"`
	UploadBudget      int     `yaml:"upload_budget"`
	UnloadBudget      int     `yaml:"unload_budget"`
	UploadQueueSize   int     `yaml:"upload_queue_size"`
	GenerationWorkers int     `yaml:"generation_workers"`
	MeshingWorkers    int     `yaml:"meshing_workers"`
	DirectionBias     float64 `yaml:"direction_bias"`
}

// ArenaConfig параметры вершинной арены
type ArenaConfig struct {
	CapacityBytes  int `yaml:"capacity_bytes"`
	FramesInFlight int `yaml:"frames_in_flight"`
}

// LODLevelConfig параметры одного грубого уровня
type LODLevelConfig struct {
	Level      int `yaml:"level"`
	Radius     int `yaml:"radius"`
	ArenaBytes int `yaml:"arena_bytes"`
}

// LODConfig параметры конвейера LOD
type LODConfig struct {
	Enabled              bool             `yaml:"enabled"`
	Workers              int              `yaml:"workers"`
	CleanupIntervalTicks int              `yaml:"cleanup_interval_ticks"`
	DeleteBatchSize      int              `yaml:"delete_batch_size"`
	UploadBudget         int              `yaml:"upload_budget"`
	Levels               []LODLevelConfig `yaml:"levels"`
}

// ServerConfig параметры отладочного HTTP сервера
type ServerConfig struct {
	DebugPort         int `yaml:"debug_port"`
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
}

// TelemetryConfig параметры OpenTelemetry
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig параметры логирования
type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// GetDebugPort возвращает порт отладочного сервера с поддержкой fallback значений
func (s *ServerConfig) GetDebugPort() int {
	return getPortWithEnvFallback(s.DebugPort, "CHUNKSTREAM_DEBUG_PORT", 8090)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	return &Config{
		World: WorldConfig{
			Seed:     1337,
			SeaLevel: 62,
			CacheDir: "data/chunks",
		},
		Streaming: StreamingConfig{
			RenderDistance:    12,
			Hysteresis:        2,
			UploadBudget:      4,
			UnloadBudget:      32,
			UploadQueueSize:   256,
			GenerationWorkers: workers,
			MeshingWorkers:    workers,
			DirectionBias:     0.5,
		},
		Arena: ArenaConfig{
			CapacityBytes:  256 << 20,
			FramesInFlight: 3,
		},
		LOD: LODConfig{
			Enabled:              true,
			Workers:              1,
			CleanupIntervalTicks: 30,
			DeleteBatchSize:      64,
			UploadBudget:         2,
			Levels: []LODLevelConfig{
				{Level: 1, Radius: 24, ArenaBytes: 64 << 20},
				{Level: 2, Radius: 48, ArenaBytes: 64 << 20},
				{Level: 3, Radius: 96, ArenaBytes: 64 << 20},
			},
		},
		Server: ServerConfig{
			MetricsIntervalMs: 1000,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chunkstream",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "INFO",
			FileLevel:    "DEBUG",
		},
	}
}

// EffectiveMeshRadius возвращает радиус мешинга; 0 в конфиге означает render_distance
func (s *StreamingConfig) EffectiveMeshRadius() int {
	if s.MeshRadius <= 0 || s.MeshRadius > s.RenderDistance {
		return s.RenderDistance
	}
	return s.MeshRadius
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	s := c.Streaming
	if s.RenderDistance <= 0 {
		return fmt.Errorf("render_distance=%d: %w", s.RenderDistance, ErrInvalidRadius)
	}
	if s.Hysteresis < 0 {
		return fmt.Errorf("hysteresis=%d: %w", s.Hysteresis, ErrInvalidRadius)
	}
	if s.UploadBudget <= 0 || s.UnloadBudget <= 0 || s.UploadQueueSize <= 0 {
		return fmt.Errorf("upload=%d unload=%d queue=%d: %w",
			s.UploadBudget, s.UnloadBudget, s.UploadQueueSize, ErrInvalidBudget)
	}
	if s.GenerationWorkers <= 0 || s.MeshingWorkers <= 0 {
		return fmt.Errorf("workers gen=%d mesh=%d: %w", s.GenerationWorkers, s.MeshingWorkers, ErrInvalidBudget)
	}
	if c.Arena.CapacityBytes <= 0 || c.Arena.FramesInFlight < 1 {
		return fmt.Errorf("capacity=%d frames=%d: %w", c.Arena.CapacityBytes, c.Arena.FramesInFlight, ErrInvalidArena)
	}

	if !c.LOD.Enabled {
		return nil
	}
	if c.LOD.Workers <= 0 || c.LOD.UploadBudget <= 0 || c.LOD.CleanupIntervalTicks <= 0 || c.LOD.DeleteBatchSize <= 0 {
		return fmt.Errorf("lod workers=%d upload=%d cleanup=%d batch=%d: %w",
			c.LOD.Workers, c.LOD.UploadBudget, c.LOD.CleanupIntervalTicks, c.LOD.DeleteBatchSize, ErrInvalidBudget)
	}
	seen := make(map[int]bool)
	for _, lvl := range c.LOD.Levels {
		if lvl.Level < 1 || lvl.Level > 3 || seen[lvl.Level] {
			return fmt.Errorf("level=%d: %w", lvl.Level, ErrInvalidLODLevel)
		}
		seen[lvl.Level] = true
		if lvl.Radius <= 0 {
			return fmt.Errorf("lod level %d radius=%d: %w", lvl.Level, lvl.Radius, ErrInvalidRadius)
		}
		if lvl.ArenaBytes <= 0 {
			return fmt.Errorf("lod level %d arena=%d: %w", lvl.Level, lvl.ArenaBytes, ErrInvalidArena)
		}
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV CHUNKSTREAM_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHUNKSTREAM_CONFIG")
		if path == "" {
			return Default(), nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
