package admin

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"colonycraft.ai/internal/persistence/r2s3"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/transport/ws"
)

// MetricsSources are read on every scrape. Nil funcs are skipped.
type MetricsSources struct {
	ColonyID    string
	Colony      func() colony.ColonyMetrics
	Replication func() ws.Stats
	Mirror      func() r2s3.Stats
}

type collector struct {
	src MetricsSources

	tick, citizens, loaded, buildings, dirty, pending, stepMS *prometheus.Desc
	persisted, published, quarantined                         *prometheus.Desc

	subscribers, replPublished, replDropped, replRejected *prometheus.Desc

	mirrorQueue, mirrorUploaded, mirrorFailed, mirrorDropped *prometheus.Desc
}

func newCollector(src MetricsSources) *collector {
	labels := []string{"colony"}
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("colonycraft_"+name, help, labels, nil)
	}
	return &collector{
		src:         src,
		tick:        d("colony_tick", "Current colony tick."),
		citizens:    d("colony_citizens", "Citizen records in the colony."),
		loaded:      d("colony_loaded_entities", "Citizens whose runtime entity is loaded."),
		buildings:   d("colony_buildings", "Registered buildings."),
		dirty:       d("colony_dirty_citizens", "Citizens waiting to be persisted."),
		pending:     d("colony_pending_commands", "Queued admin commands."),
		stepMS:      d("colony_step_ms", "Last tick step duration in milliseconds."),
		persisted:   d("colony_persisted_total", "Citizen documents written to the store."),
		published:   d("colony_published_total", "View snapshots published."),
		quarantined: d("colony_quarantined_total", "Durable documents rejected on load."),

		subscribers:   d("replication_subscribers", "Connected replication observers."),
		replPublished: d("replication_published_total", "Snapshots fanned out to observers."),
		replDropped:   d("replication_dropped_total", "Snapshots dropped for slow observers."),
		replRejected:  d("replication_rejected_total", "Rejected subscription attempts."),

		mirrorQueue:    d("snapshot_mirror_queue_depth", "Snapshot files waiting for upload."),
		mirrorUploaded: d("snapshot_mirror_upload_success_total", "Snapshot files uploaded."),
		mirrorFailed:   d("snapshot_mirror_upload_fail_total", "Snapshot uploads that failed after retry."),
		mirrorDropped:  d("snapshot_mirror_dropped_total", "Snapshot files dropped on a saturated queue."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tick, c.citizens, c.loaded, c.buildings, c.dirty, c.pending, c.stepMS,
		c.persisted, c.published, c.quarantined,
		c.subscribers, c.replPublished, c.replDropped, c.replRejected,
		c.mirrorQueue, c.mirrorUploaded, c.mirrorFailed, c.mirrorDropped,
	} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	id := c.src.ColonyID
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, id)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), id)
	}

	if c.src.Colony != nil {
		m := c.src.Colony()
		gauge(c.tick, float64(m.Tick))
		gauge(c.citizens, float64(m.Citizens))
		gauge(c.loaded, float64(m.LoadedEntities))
		gauge(c.buildings, float64(m.Buildings))
		gauge(c.dirty, float64(m.DirtyCitizens))
		gauge(c.pending, float64(m.PendingCommands))
		gauge(c.stepMS, m.StepMS)
		counter(c.persisted, m.PersistedTotal)
		counter(c.published, m.PublishedTotal)
		counter(c.quarantined, m.QuarantinedTotal)
	}
	if c.src.Replication != nil {
		s := c.src.Replication()
		gauge(c.subscribers, float64(s.Subscribers))
		counter(c.replPublished, s.PublishedTotal)
		counter(c.replDropped, s.DroppedTotal)
		counter(c.replRejected, s.RejectedTotal)
	}
	if c.src.Mirror != nil {
		s := c.src.Mirror()
		gauge(c.mirrorQueue, float64(s.QueueDepth))
		counter(c.mirrorUploaded, s.UploadSuccessTotal)
		counter(c.mirrorFailed, s.UploadFailTotal)
		counter(c.mirrorDropped, s.DroppedTotal)
	}
}

// MetricsHandler serves the Prometheus exposition for one colony process on
// its own registry, with Go runtime collectors included.
func MetricsHandler(src MetricsSources) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
