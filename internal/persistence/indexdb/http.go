package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
)

// HTTPConfig configures the remote ingest backend, which posts batches of
// index events as JSON to one endpoint.
type HTTPConfig struct {
	Endpoint      string
	Token         string
	TableID       string
	BatchSize     int
	MaxPending    int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

type HTTPIndex struct {
	cfg        HTTPConfig
	httpClient *http.Client

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushOK      atomic.Uint64
	flushFail    atomic.Uint64
	queueDropped atomic.Uint64
	batchDropped atomic.Uint64
}

// HTTPStats reports delivery counters for the ingest backend.
type HTTPStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	FlushOKTotal      uint64 `json:"flush_ok_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	BatchDroppedTotal uint64 `json:"batch_dropped_total"`
}

type ingestEvent struct {
	Kind    string `json:"kind"`
	TableID string `json:"table_id"`
	Payload any    `json:"payload"`
}

type ingestTick struct {
	Tick   uint64                `json:"tick"`
	GameID string                `json:"game_id"`
	Digest string                `json:"digest"`
	Inputs []match.RecordedInput `json:"inputs,omitempty"`
}

type ingestSnapshot struct {
	Tick   uint64 `json:"tick"`
	GameID string `json:"game_id"`
	Round  int    `json:"round"`
	Final  bool   `json:"final"`
	Path   string `json:"path"`
}

type ingestConfig struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenHTTP(cfg HTTPConfig) (*HTTPIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.TableID = strings.TrimSpace(cfg.TableID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.TableID == "" {
		return nil, fmt.Errorf("empty table id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 64 * cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &HTTPIndex{
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

func (d *HTTPIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *HTTPIndex) Stats() HTTPStats {
	return HTTPStats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		FlushOKTotal:      d.flushOK.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDropped.Load(),
		BatchDroppedTotal: d.batchDropped.Load(),
	}
}

func (d *HTTPIndex) WriteTick(entry match.TickLogEntry) error {
	if d == nil {
		return nil
	}
	d.enqueue("tick", ingestTick{Tick: entry.Tick, GameID: entry.GameID, Digest: entry.Digest, Inputs: entry.Inputs})
	return nil
}

func (d *HTTPIndex) RecordRound(r match.RoundRecord) {
	if d == nil {
		return
	}
	d.enqueue("round", r)
}

func (d *HTTPIndex) RecordGame(g match.GameRecord) {
	if d == nil {
		return
	}
	d.enqueue("game", g)
}

func (d *HTTPIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil {
		return
	}
	d.enqueue("snapshot", ingestSnapshot{
		Tick:   snap.Header.Tick,
		GameID: snap.Header.GameID,
		Round:  snap.Header.Round,
		Final:  snap.Header.Final,
		Path:   path,
	})
}

func (d *HTTPIndex) UpsertTuning(tune tuning.Tuning) error {
	if d == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	d.enqueue("config", ingestConfig{
		Name:      "tuning",
		Digest:    hex.EncodeToString(sum[:]),
		JSON:      string(b),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	return nil
}

func (d *HTTPIndex) enqueue(kind string, payload any) {
	if d.closed.Load() {
		return
	}
	select {
	case d.ch <- ingestEvent{Kind: kind, TableID: d.cfg.TableID, Payload: payload}:
	default:
		d.queueDropped.Add(1)
		d.printf("ingest queue full; drop kind=%s table=%s", kind, d.cfg.TableID)
	}
}

// loop batches events. A batch that fails to send is kept and retried on the
// next flush; the oldest events are discarded past MaxPending.
func (d *HTTPIndex) loop() {
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
			if over := len(batch) - d.cfg.MaxPending; over > 0 {
				d.batchDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushOK.Add(1)
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

func (d *HTTPIndex) sendBatch(events []ingestEvent) error {
	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-qp-index-token", d.cfg.Token)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

func (d *HTTPIndex) printf(format string, args ...any) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
