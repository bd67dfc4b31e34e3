package indexdb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"colonycraft.ai/internal/sim/catalogs"
	"colonycraft.ai/internal/sim/colony"
	"colonycraft.ai/internal/sim/tuning"
)

// IngestConfig configures a remote index that receives batched JSON events
// over HTTP.
type IngestConfig struct {
	Endpoint      string
	Token         string
	ColonyID      string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many events a failing endpoint can hold back.
	MaxRetained   int
	Logger        *log.Logger
}

// IngestIndex mirrors audits, snapshots and catalogs to a remote endpoint.
// It is a secondary index only; citizen documents stay in the local store.
type IngestIndex struct {
	cfg        IngestConfig
	httpClient *http.Client

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex

	closed atomic.Bool

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int

	flushFail  atomic.Uint64
	queueDrop  atomic.Uint64
	retainDrop atomic.Uint64
	sentEvents atomic.Uint64
}

type ingestEvent struct {
	Kind     string `json:"kind"`
	ColonyID string `json:"colony_id"`
	Payload  any    `json:"payload"`
}

type ingestAuditPayload struct {
	Seq int `json:"seq"`
	colony.AuditEntry
}

type ingestSnapshotPayload struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Citizens  int    `json:"citizens"`
	Buildings int    `json:"buildings"`
}

type ingestCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type IngestStats struct {
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	RetainDropTotal   uint64 `json:"retain_drop_total"`
	SentTotal         uint64 `json:"sent_total"`
}

func OpenIngest(cfg IngestConfig) (*IngestIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.ColonyID = strings.TrimSpace(cfg.ColonyID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.ColonyID == "" {
		return nil, fmt.Errorf("empty colony id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 4096
	}

	d := &IngestIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan ingestEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *IngestIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
	return nil
}

func (d *IngestIndex) Stats() IngestStats {
	return IngestStats{
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDrop.Load(),
		RetainDropTotal:   d.retainDrop.Load(),
		SentTotal:         d.sentEvents.Load(),
	}
}

// WriteAudit implements colony.AuditSink.
func (d *IngestIndex) WriteAudit(entry colony.AuditEntry) error {
	if d == nil {
		return nil
	}
	p := ingestAuditPayload{Seq: d.nextAuditSeq(entry.Tick), AuditEntry: entry}
	d.enqueue(ingestEvent{Kind: "audit", ColonyID: d.cfg.ColonyID, Payload: p})
	return nil
}

// RecordSnapshot implements colony.SnapshotRecorder.
func (d *IngestIndex) RecordSnapshot(path string, _ string, tick uint64, citizens, buildings int) {
	if d == nil {
		return
	}
	p := ingestSnapshotPayload{Tick: tick, Path: path, Citizens: citizens, Buildings: buildings}
	d.enqueue(ingestEvent{Kind: "snapshot", ColonyID: d.cfg.ColonyID, Payload: p})
}

func (d *IngestIndex) UpsertCatalogs(_ context.Context, configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name   string
		digest string
		data   []byte
	}
	var rows []row
	read := func(name, file, digest string) {
		if configDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, row{name: name, digest: digest, data: b})
	}
	read("names", "names.json", cats.Names.Digest)
	read("buildings", "buildings.json", cats.Buildings.Digest)
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		d.enqueue(ingestEvent{Kind: "catalog", ColonyID: d.cfg.ColonyID, Payload: ingestCatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *IngestIndex) nextAuditSeq(tick uint64) int {
	d.auditMu.Lock()
	defer d.auditMu.Unlock()
	if tick != d.lastAuditTick {
		d.lastAuditTick = tick
		d.auditSeq = 0
	}
	d.auditSeq++
	return d.auditSeq
}

func (d *IngestIndex) enqueue(ev ingestEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.queueDrop.Add(1)
		d.printf("ingest queue full; drop kind=%s colony=%s", ev.Kind, ev.ColonyID)
	}
}

func (d *IngestIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]ingestEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("ingest flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next tick, oldest events first out.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDrop.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.sentEvents.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *IngestIndex) sendBatch(events []ingestEvent) error {
	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-cc-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *IngestIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
