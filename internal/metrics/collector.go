// Package metrics exposes world, mirror and index runtime signals to
// Prometheus. Values are read at scrape time; nothing here touches the world
// loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"citydev.io/internal/persistence/indexdb"
	"citydev.io/internal/persistence/objstore"
	"citydev.io/internal/sim/world"
)

const namespace = "citydev"

// Sources are read on every scrape. Nil sources are skipped.
type Sources struct {
	WorldID string
	World   func() world.WorldMetrics
	Mirror  func() objstore.Stats
	Index   func() indexdb.Stats
}

type Collector struct {
	src Sources

	tick            *prometheus.Desc
	paused          *prometheus.Desc
	speed           *prometheus.Desc
	funds           *prometheus.Desc
	entities        *prometheus.Desc
	properties      *prometheus.Desc
	owned           *prometheus.Desc
	pendingUpgrades *prometheus.Desc
	actions         *prometheus.Desc
	actionErrors    *prometheus.Desc
	violations      *prometheus.Desc
	subscribers     *prometheus.Desc
	queueDepth      *prometheus.Desc
	stepMS          *prometheus.Desc

	mirrorQueue    *prometheus.Desc
	mirrorUploads  *prometheus.Desc
	mirrorDropped  *prometheus.Desc
	mirrorLastSucc *prometheus.Desc

	indexQueue     *prometheus.Desc
	indexDropped   *prometheus.Desc
	indexWriteErrs *prometheus.Desc
}

func NewCollector(src Sources) *Collector {
	wl := prometheus.Labels{"world": src.WorldID}
	d := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, wl)
	}
	return &Collector{
		src: src,

		tick:            d("world", "tick", "Current world tick."),
		paused:          d("world", "paused", "1 while the simulated clock is paused."),
		speed:           d("world", "speed_multiplier", "Current simulation speed multiplier."),
		funds:           d("world", "player_funds", "Player funds."),
		entities:        d("world", "entities", "Entities in the store."),
		properties:      d("world", "properties", "Properties in the world."),
		owned:           d("world", "owned_properties", "Properties owned by the player."),
		pendingUpgrades: d("world", "pending_upgrades", "Purchased upgrades not yet applied."),
		actions:         d("world", "actions_total", "Actions processed."),
		actionErrors:    d("world", "action_errors_total", "Actions rejected with an error code."),
		violations:      d("world", "invariant_violations_total", "Invariant checks that failed."),
		subscribers:     d("world", "subscribers", "State push subscribers."),
		queueDepth:      d("world", "queue_depth", "World loop channel backlog.", "queue"),
		stepMS:          d("world", "step_ms", "Last tick step duration in milliseconds."),

		mirrorQueue:    d("mirror", "queue_depth", "Object mirror queue depth."),
		mirrorUploads:  d("mirror", "uploads_total", "Object mirror uploads by result.", "result"),
		mirrorDropped:  d("mirror", "dropped_total", "Files dropped because the mirror queue stayed full."),
		mirrorLastSucc: d("mirror", "last_success_unix", "Unix time of the last successful upload."),

		indexQueue:     d("index", "queue_depth", "Index writer queue depth."),
		indexDropped:   d("index", "dropped_total", "Index writes dropped under backpressure.", "kind"),
		indexWriteErrs: d("index", "write_errors_total", "Index transactions that failed."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tick, c.paused, c.speed, c.funds, c.entities, c.properties, c.owned,
		c.pendingUpgrades, c.actions, c.actionErrors, c.violations, c.subscribers,
		c.queueDepth, c.stepMS,
		c.mirrorQueue, c.mirrorUploads, c.mirrorDropped, c.mirrorLastSucc,
		c.indexQueue, c.indexDropped, c.indexWriteErrs,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if c.src.World != nil {
		m := c.src.World()
		gauge(c.tick, float64(m.Tick))
		paused := 0.0
		if m.Paused {
			paused = 1
		}
		gauge(c.paused, paused)
		gauge(c.speed, m.SpeedMultiplier)
		gauge(c.funds, m.Funds)
		gauge(c.entities, float64(m.Entities))
		gauge(c.properties, float64(m.Properties))
		gauge(c.owned, float64(m.OwnedProperties))
		gauge(c.pendingUpgrades, float64(m.PendingUpgrades))
		counter(c.actions, float64(m.ActionsTotal))
		counter(c.actionErrors, float64(m.ActionErrorsTotal))
		counter(c.violations, float64(m.InvariantViolations))
		gauge(c.subscribers, float64(m.Subscribers))
		gauge(c.queueDepth, float64(m.QueueDepths.Actions), "actions")
		gauge(c.queueDepth, float64(m.QueueDepths.Admin), "admin")
		gauge(c.stepMS, m.StepMS)
	}

	if c.src.Mirror != nil {
		s := c.src.Mirror()
		gauge(c.mirrorQueue, float64(s.QueueDepth))
		counter(c.mirrorUploads, float64(s.UploadSuccessTotal), "success")
		counter(c.mirrorUploads, float64(s.UploadFailTotal), "fail")
		counter(c.mirrorDropped, float64(s.DroppedTotal))
		gauge(c.mirrorLastSucc, float64(s.LastSuccessUnix))
	}

	if c.src.Index != nil {
		s := c.src.Index()
		gauge(c.indexQueue, float64(s.QueueDepth))
		counter(c.indexDropped, float64(s.DropTickTotal), "tick")
		counter(c.indexDropped, float64(s.DropAuditTotal), "audit")
		counter(c.indexDropped, float64(s.DropSnapshotTotal), "snapshot")
		counter(c.indexDropped, float64(s.DropYearTotal), "year")
		counter(c.indexWriteErrs, float64(s.WriteErrorTotal))
	}
}

// NewRegistry returns a private registry holding c and the Go runtime and
// process collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
