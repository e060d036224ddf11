// Package registry implements the Engine: the process-wide map from
// external host handle to Host, built once over a Config snapshot and an
// EventStore, and the agent-facing query surface (anomaly bit lookups and
// anomaly event queries).
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hostml/adengine/config"
	"github.com/hostml/adengine/eventstore"
	"github.com/hostml/adengine/host"
	"github.com/hostml/adengine/logger"
	"github.com/hostml/adengine/metrics"
	"github.com/hostml/adengine/storage"
)

// Engine is the process-wide registry. It carries no mutable global
// config — Config is loaded once and shared by reference — and its host
// map sits behind a RWMutex: NewDimension, DeleteDimension and IsAnomalous
// take only the read lock and never wait on each other, while NewHost,
// DeleteHost and Shutdown take the write lock for their map update.
type Engine struct {
	cfg   *config.Config
	src   storage.Source
	store eventstore.Store
	sink  host.ChartSink
	log   logr.Logger
	m     *metrics.Metrics

	mu    sync.RWMutex
	hosts map[string]*host.Host
}

// New builds an Engine directly from its collaborators. Tests prefer
// this over Init so they can hand in an eventstore.MemStore instead of a
// cgo-backed SQLStore.
func New(cfg *config.Config, src storage.Source, store eventstore.Store, sink host.ChartSink, log logr.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:   cfg,
		src:   src,
		store: store,
		sink:  sink,
		log:   log,
		m:     m,
		hosts: make(map[string]*host.Host),
	}
}

// Init loads Config from cfgSource, constructs the durable EventStore at
// dbPath, and builds the internal metrics registered against reg (a fresh
// *prometheus.Registry if reg is nil). No workers start here — they start
// per-host in NewHost.
func Init(cfgSource config.Source, dbPath string, src storage.Source, sink host.ChartSink, level logger.Level, reg *prometheus.Registry) (*Engine, error) {
	cfg := config.Load(cfgSource)

	store, err := eventstore.Open(dbPath)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return New(cfg, src, store, sink, logger.New(level), metrics.New(reg)), nil
}

// Config returns the immutable snapshot this Engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// NewHost registers a monitored host: if hostname matches the skip
// pattern, this is a no-op. Otherwise a Host is constructed and its
// workers started. Returns false if the host already exists or is
// skipped.
func (e *Engine) NewHost(hostname string) bool {
	if e.cfg.HostsToSkip.MatchString(hostname) {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.hosts[hostname]; exists {
		return false
	}

	h := host.New(hostname, e.cfg, e.src, e.store, e.sink, e.log, e.m)
	h.Start()
	e.hosts[hostname] = h
	return true
}

// DeleteHost signals both of the host's workers, joins them, and drops
// the entry. The join happens outside the map lock so a
// slow Stop (waiting on an in-progress train()) never blocks lookups of
// other hosts.
func (e *Engine) DeleteHost(hostname string) bool {
	e.mu.Lock()
	h, ok := e.hosts[hostname]
	if ok {
		delete(e.hosts, hostname)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	h.Stop()
	return true
}

func (e *Engine) hostByName(hostname string) (*host.Host, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.hosts[hostname]
	return h, ok
}

// NewDimension adds a monitored series to a registered host; if the chart
// name matches the chart-skip pattern, this is a no-op.
func (e *Engine) NewDimension(hostname string, handle storage.Handle, id, name string, updateEvery int64) bool {
	if e.cfg.ChartsToSkip.MatchString(name) {
		return false
	}
	h, ok := e.hostByName(hostname)
	if !ok {
		return false
	}
	h.AddDimension(handle, id, name, updateEvery)
	return true
}

// DeleteDimension removes a monitored series from a registered host.
func (e *Engine) DeleteDimension(hostname, id string) bool {
	h, ok := e.hostByName(hostname)
	if !ok {
		return false
	}
	h.RemoveDimension(id)
	return true
}

// IsAnomalous is a lock-free atomic read of the dimension's cached
// anomaly bit, behind only the brief host map lookup.
func (e *Engine) IsAnomalous(hostname, id string) bool {
	h, ok := e.hostByName(hostname)
	if !ok {
		return false
	}
	return h.IsAnomalous(id)
}

// HostUUID returns the UUID a registered host was assigned, for callers
// that need it to query the EventStore.
func (e *Engine) HostUUID(hostname string) (uuid.UUID, bool) {
	h, ok := e.hostByName(hostname)
	if !ok {
		return uuid.UUID{}, false
	}
	return h.UUID(), true
}

// GetAnomalyEvents returns a JSON array of [after, before] pairs, or nil
// if none match.
func (e *Engine) GetAnomalyEvents(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([]byte, error) {
	ranges, err := e.store.Range(ctx, detectorName, detectorVersion, hostUUID, after, before)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, nil
	}
	pairs := make([][2]int64, len(ranges))
	for i, r := range ranges {
		pairs[i] = [2]int64{r.After, r.Before}
	}
	return json.Marshal(pairs)
}

// GetAnomalyEventInfo returns a JSON array of the stored payload-json
// blobs, or nil if none match.
func (e *Engine) GetAnomalyEventInfo(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([]byte, error) {
	payloads, err := e.store.Info(ctx, detectorName, detectorVersion, hostUUID, after, before)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	raw := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		raw[i] = p
	}
	return json.Marshal(raw)
}

// Shutdown stops every registered host's workers and empties the map.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	hosts := make([]*host.Host, 0, len(e.hosts))
	for _, h := range e.hosts {
		hosts = append(hosts, h)
	}
	e.hosts = make(map[string]*host.Host)
	e.mu.Unlock()

	for _, h := range hosts {
		h.Stop()
	}
}
