package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"quantumparty.dev/internal/persistence/snapshot"
)

type GameArchiveMeta struct {
	GameID    string `json:"game_id"`
	EndTick   uint64 `json:"end_tick"`
	Rounds    int    `json:"rounds"`
	Seed      int64  `json:"seed"`
	Map       string `json:"map"`
	Turns     int    `json:"turns"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveGameSnapshot copies a final snapshot into dataDir/archives/<game_id>/
// and writes meta.json beside it. Non-final snapshots are ignored and report
// archived=false.
func ArchiveGameSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.Header.Final {
		return "", false, nil
	}
	if snap.Header.GameID == "" {
		return "", false, fmt.Errorf("archive: final snapshot without game id")
	}

	archiveDir := filepath.Join(dataDir, "archives", snap.Header.GameID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := GameArchiveMeta{
		GameID:    snap.Header.GameID,
		EndTick:   snap.Header.Tick,
		Rounds:    snap.Header.Round,
		Seed:      snap.Session.Seed,
		Map:       snap.Map,
		Turns:     snap.Session.Config.Turns,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
