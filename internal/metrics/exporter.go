// Package metrics публикует диагностику конвейера в Prometheus: датчики
// снимаются периодически, счётчики событий растут по шине.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/lod"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/streamer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chunkstream"

// StreamerSource источник диагностики уровня 0
type StreamerSource interface {
	Diagnostics() streamer.Diagnostics
}

// LODSource источник диагностики грубых уровней
type LODSource interface {
	Diagnostics() lod.Diagnostics
}

// CacheSource источник счётчиков кэша чанков
type CacheSource interface {
	Stats() storage.CacheStats
}

// Sources наблюдаемые компоненты; любой из них может быть nil
type Sources struct {
	Streamer StreamerSource
	LOD      LODSource
	Cache    CacheSource
	Bus      eventbus.EventBus
	Process  *ProcessStats
}

// Exporter держит собственный реестр Prometheus, поэтому несколько
// экземпляров (например, в тестах) не конфликтуют
type Exporter struct {
	src      Sources
	interval time.Duration
	registry *prometheus.Registry
	logger   *logging.Logger

	chunks      *prometheus.GaugeVec
	regions     *prometheus.GaugeVec
	uploadQueue *prometheus.GaugeVec
	arenaBytes  *prometheus.GaugeVec
	poolJobs    *prometheus.GaugeVec
	pipeline    *prometheus.CounterVec
	events      *prometheus.CounterVec
	busMessages *prometheus.CounterVec
	busInflight prometheus.Gauge
	cacheOps    *prometheus.CounterVec
	process     *prometheus.GaugeVec

	// для счётчиков храним прошлые значения и прибавляем дельту
	mu   sync.Mutex
	prev map[string]uint64

	sub     eventbus.Subscription
	started atomic.Bool
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewExporter создаёт экспортер и регистрирует метрики, но не запускает
// периодическое обновление
func NewExporter(src Sources, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = time.Second
	}
	e := &Exporter{
		src:      src,
		interval: interval,
		registry: prometheus.NewRegistry(),
		logger:   logging.GetComponentLogger("metrics"),
		prev:     make(map[string]uint64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),

		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks",
			Help:      "Чанки полной детализации по состояниям.",
		}, []string{"state"}),
		regions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lod_regions",
			Help:      "Регионы LOD по уровням и состояниям.",
		}, []string{"level", "state"}),
		uploadQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_queue",
			Help:      "Объекты в очереди загрузки на GPU.",
		}, []string{"level"}),
		arenaBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_bytes",
			Help:      "Байты арен вершин: used, free, pending, largest_free.",
		}, []string{"arena", "kind"}),
		poolJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_jobs",
			Help:      "Задания пулов воркеров: queued, active.",
		}, []string{"pool", "kind"}),
		pipeline: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_total",
			Help:      "Накопленные счётчики конвейеров.",
		}, []string{"component", "counter"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "События жизненного цикла по типам.",
		}, []string{"type"}),
		busMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_total",
			Help:      "Сообщения шины: published, consumed, dropped.",
		}, []string{"kind"}),
		busInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Количество сообщений, находящихся в очереди (не доставленных).",
		}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_cache_total",
			Help:      "Операции кэша чанков: hit, miss, store, corrupt.",
		}, []string{"op"}),
		process: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process",
			Help:      "Ресурсы процесса: rss_bytes, cpu_percent, heap_bytes, goroutines.",
		}, []string{"kind"}),
	}

	e.registry.MustRegister(
		e.chunks, e.regions, e.uploadQueue, e.arenaBytes, e.poolJobs,
		e.pipeline, e.events, e.busMessages, e.busInflight, e.cacheOps, e.process,
	)
	return e
}

// Registry реестр экспортера
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler HTTP обработчик /metrics поверх реестра экспортера
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Start подписывается на события шины и запускает периодическое обновление
func (e *Exporter) Start() error {
	if e.src.Bus != nil {
		sub, err := e.src.Bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
			e.events.WithLabelValues(ev.EventType).Inc()
		})
		if err != nil {
			return err
		}
		e.sub = sub
	}
	e.started.Store(true)
	go e.loop()
	e.logger.Info("экспорт метрик каждые %s", e.interval)
	return nil
}

// Stop останавливает обновление и отписывается от шины
func (e *Exporter) Stop() {
	e.once.Do(func() {
		if e.sub != nil {
			e.sub.Unsubscribe()
		}
		close(e.quit)
	})
	if e.started.Load() {
		<-e.done
	}
}

func (e *Exporter) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	defer close(e.done)

	for {
		select {
		case <-ticker.C:
			e.Collect()
		case <-e.quit:
			return
		}
	}
}

// Collect снимает все источники один раз
func (e *Exporter) Collect() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src.Streamer != nil {
		e.collectStreamer(e.src.Streamer.Diagnostics())
	}
	if e.src.LOD != nil {
		e.collectLOD(e.src.LOD.Diagnostics())
	}
	if e.src.Bus != nil {
		st := e.src.Bus.Metrics()
		e.addDelta(e.busMessages.WithLabelValues("published"), "bus/published", st.Published)
		e.addDelta(e.busMessages.WithLabelValues("consumed"), "bus/consumed", st.Consumed)
		e.addDelta(e.busMessages.WithLabelValues("dropped"), "bus/dropped", st.Dropped)
		e.busInflight.Set(float64(st.InFlight))
	}
	if e.src.Cache != nil {
		st := e.src.Cache.Stats()
		e.addDelta(e.cacheOps.WithLabelValues("hit"), "cache/hit", st.Hits)
		e.addDelta(e.cacheOps.WithLabelValues("miss"), "cache/miss", st.Misses)
		e.addDelta(e.cacheOps.WithLabelValues("store"), "cache/store", st.Stores)
		e.addDelta(e.cacheOps.WithLabelValues("corrupt"), "cache/corrupt", st.Corrupt)
	}
	if e.src.Process != nil {
		ps := e.src.Process.Snapshot()
		e.process.WithLabelValues("rss_bytes").Set(float64(ps.RSSBytes))
		e.process.WithLabelValues("cpu_percent").Set(ps.CPUPercent)
		e.process.WithLabelValues("heap_bytes").Set(float64(ps.HeapAllocBytes))
		e.process.WithLabelValues("goroutines").Set(float64(ps.Goroutines))
	}
}

func (e *Exporter) collectStreamer(d streamer.Diagnostics) {
	e.chunks.Reset()
	for state, n := range d.States {
		e.chunks.WithLabelValues(state).Set(float64(n))
	}
	e.uploadQueue.WithLabelValues("0").Set(float64(d.UploadQueue))
	e.setArena(d.Arena)
	e.setPool(d.Generation)
	e.setPool(d.Meshing)

	c := d.Counters
	e.addPipeline("streamer", "generated", c.Generated)
	e.addPipeline("streamer", "meshed", c.Meshed)
	e.addPipeline("streamer", "uploaded", c.Uploaded)
	e.addPipeline("streamer", "evicted", c.Evicted)
	e.addPipeline("streamer", "stale", c.Stale)
	e.addPipeline("streamer", "generation_failures", c.GenerationFailures)
	e.addPipeline("streamer", "oom_retries", c.OOMRetries)
}

func (e *Exporter) collectLOD(d lod.Diagnostics) {
	e.regions.Reset()
	for _, ld := range d.Levels {
		level := strconv.Itoa(ld.Level)
		for state, n := range ld.States {
			e.regions.WithLabelValues(level, state).Set(float64(n))
		}
		e.regions.WithLabelValues(level, "covered").Set(float64(ld.Covered))
		e.uploadQueue.WithLabelValues(level).Set(float64(ld.UploadQueue))
		e.setArena(ld.Arena)
	}
	e.setPool(d.Pool)

	c := d.Counters
	e.addPipeline("lod", "generated", c.Generated)
	e.addPipeline("lod", "meshed", c.Meshed)
	e.addPipeline("lod", "uploaded", c.Uploaded)
	e.addPipeline("lod", "evicted", c.Evicted)
	e.addPipeline("lod", "freed", c.Freed)
	e.addPipeline("lod", "stale", c.Stale)
	e.addPipeline("lod", "generation_failures", c.GenerationFailures)
	e.addPipeline("lod", "oom_retries", c.OOMRetries)
}

func (e *Exporter) setArena(s arena.Stats) {
	e.arenaBytes.WithLabelValues(s.Name, "used").Set(float64(s.UsedBytes))
	e.arenaBytes.WithLabelValues(s.Name, "free").Set(float64(s.FreeBytes))
	e.arenaBytes.WithLabelValues(s.Name, "pending").Set(float64(s.PendingBytes))
	e.arenaBytes.WithLabelValues(s.Name, "largest_free").Set(float64(s.LargestFree))
}

func (e *Exporter) setPool(s jobs.Stats) {
	e.poolJobs.WithLabelValues(s.Name, "queued").Set(float64(s.Queued))
	e.poolJobs.WithLabelValues(s.Name, "active").Set(float64(s.Active))
}

func (e *Exporter) addPipeline(component, counter string, v uint64) {
	e.addDelta(e.pipeline.WithLabelValues(component, counter), component+"/"+counter, v)
}

// addDelta прибавляет к счётчику приращение с прошлого снимка. Значение
// меньше прошлого означает перезапуск источника.
func (e *Exporter) addDelta(c prometheus.Counter, key string, v uint64) {
	prev := e.prev[key]
	e.prev[key] = v
	if v > prev {
		c.Add(float64(v - prev))
	}
}
