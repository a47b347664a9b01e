package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/chunkstream/internal/api"
	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/gpu"
	"github.com/annel0/chunkstream/internal/lod"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/metrics"
	"github.com/annel0/chunkstream/internal/observability"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/streamer"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
)

const tickRate = 60

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию CHUNKSTREAM_CONFIG)")
	ticks := flag.Int("ticks", 0, "число тиков до выхода; 0 - до сигнала")
	speed := flag.Float64("speed", 8, "скорость наблюдателя вдоль +X, блоков в секунду")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("streamer"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	consoleLevel := logging.ParseLevel(cfg.Logging.ConsoleLevel, logging.INFO)
	fileLevel := logging.ParseLevel(cfg.Logging.FileLevel, logging.DEBUG)
	logging.Default().SetLevels(consoleLevel, fileLevel)
	logging.GetLoggerManager().SetLevels(consoleLevel, fileLevel)
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg, *ticks, *speed); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Стример успешно остановлен")
}

func run(cfg *config.Config, ticks int, speed float64) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	// === ГЕНЕРАТОР ===
	var gen world.Generator = world.NewPerlinGenerator(cfg.World.Seed, cfg.World.SeaLevel)
	var cache *storage.ChunkCache
	if cfg.World.CacheEnabled {
		cache, err = storage.OpenChunkCache(cfg.World.CacheDir, cfg.World.Seed)
		if err != nil {
			return fmt.Errorf("кэш чанков: %w", err)
		}
		defer cache.Close()
		gen = storage.NewCachingGenerator(gen, cache)
		logging.Info("💾 Кэш чанков: %s", cfg.World.CacheDir)
	}

	bus := eventbus.NewMemoryBus(1024)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}

	// === КОНВЕЙЕРЫ ===
	mem := gpu.NewMemory()
	s, err := streamer.New(cfg, gen, mem, streamer.WithEventBus(bus))
	if err != nil {
		return fmt.Errorf("стример: %w", err)
	}
	defer s.Close()

	var lm *lod.Manager
	if cfg.LOD.Enabled {
		lm, err = lod.New(cfg, gen, mem, s, lod.WithEventBus(bus))
		if err != nil {
			return fmt.Errorf("lod: %w", err)
		}
		defer lm.Close()
	}

	// === НАБЛЮДАЕМОСТЬ ===
	sources := metrics.Sources{Streamer: s, Bus: bus}
	if lm != nil {
		sources.LOD = lm
	}
	if cache != nil {
		sources.Cache = cache
	}
	if ps, err := metrics.NewProcessStats(); err == nil {
		sources.Process = ps
	} else {
		logging.Warn("статистика процесса недоступна: %v", err)
	}

	exporter := metrics.NewExporter(sources, time.Duration(cfg.Server.MetricsIntervalMs)*time.Millisecond)
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("метрики: %w", err)
	}
	defer exporter.Stop()

	serverCfg := api.Config{
		Addr:     fmt.Sprintf(":%d", cfg.Server.GetDebugPort()),
		Streamer: s,
		Cache:    sources.Cache,
		Process:  sources.Process,
		Exporter: exporter,
	}
	if lm != nil {
		serverCfg.LOD = lm
	}
	server := api.NewDebugServer(serverCfg)
	server.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error("❌ Ошибка остановки отладочного сервера: %v", err)
		}
	}()

	logging.Info("✅ Конвейер запущен: seed=%d, render_distance=%d, lod=%v",
		cfg.World.Seed, cfg.Streaming.RenderDistance, cfg.LOD.Enabled)
	logging.Info("   🔧 Диагностика: http://localhost%s/debug/diagnostics", serverCfg.Addr)

	loop(ctx, s, lm, mem, ticks, speed)
	return nil
}

// loop безголовый основной поток: двигает наблюдателя, обновляет
// конвейеры и завершает кадр
func loop(ctx context.Context, s *streamer.Streamer, lm *lod.Manager, mem *gpu.Memory, ticks int, speed float64) {
	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	obs := streamer.Observer{
		Position: vec.Vec3Float{X: 8, Y: 100, Z: 8},
		Velocity: vec.Vec3Float{X: speed},
	}
	dt := 1.0 / tickRate

	for tick := 1; ticks == 0 || tick <= ticks; tick++ {
		select {
		case <-ctx.Done():
			logging.Info("📡 Получен сигнал завершения на тике %d", tick)
			return
		case <-ticker.C:
		}

		obs.Position.X += obs.Velocity.X * dt
		s.Update(obs)
		if lm != nil {
			lm.Update(obs)
			lm.Render()
		}
		s.Render()
		mem.EndFrame()

		if tick%(tickRate*5) == 0 {
			d := s.Diagnostics()
			logging.Info("тик %d: центр %s, чанков %d (готово %d), арена %d/%d байт",
				tick, d.Center, d.Resident, d.Count(world.StateRenderable), d.Arena.UsedBytes, d.Arena.Capacity)
		}
	}
}
