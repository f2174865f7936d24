package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"quantumparty.dev/internal/sim/match"
)

// JSONLZstdWriter appends JSON lines to zstd files rotated every UTC hour.
// Each line is flushed before Write returns.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger journals one entry per match tick. Replay reads it back with
// ReadTicks.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(TickDir(dataDir), tickPrefix)}
}

func (l *TickLogger) WriteTick(e match.TickLogEntry) error { return l.w.Write(e) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// ResultLogger keeps a human-readable record of measured rounds and
// finished games next to the journal.
type ResultLogger struct {
	w      *JSONLZstdWriter
	logErr func(error)
}

type resultLine struct {
	Kind  string             `json:"kind"`
	Round *match.RoundRecord `json:"round,omitempty"`
	Game  *match.GameRecord  `json:"game,omitempty"`
}

func NewResultLogger(dataDir string, onErr func(error)) *ResultLogger {
	return &ResultLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "results"), "results"), logErr: onErr}
}

func (l *ResultLogger) RecordRound(r match.RoundRecord) {
	l.write(resultLine{Kind: "ROUND", Round: &r})
}

func (l *ResultLogger) RecordGame(g match.GameRecord) {
	l.write(resultLine{Kind: "GAME", Game: &g})
}

func (l *ResultLogger) write(v resultLine) {
	if err := l.w.Write(v); err != nil && l.logErr != nil {
		l.logErr(err)
	}
}

func (l *ResultLogger) Close() error { return l.w.Close() }
