package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version  int    `json:"version"`
	ColonyID string `json:"colony_id"`
	Tick     uint64 `json:"tick"`
}

// ColonySnapshotV1 is a full save of one colony. Citizens are stored as
// their durable documents so restore goes through the same validation as the
// citizen store.
type ColonySnapshotV1 struct {
	Header Header `json:"header"`

	NamesDigest     string `json:"names_digest,omitempty"`
	BuildingsDigest string `json:"buildings_digest,omitempty"`

	Citizens  [][]byte     `json:"citizens"`
	Buildings []BuildingV1 `json:"buildings"`
}

// BuildingV1 records a standing building. Citizen associations are not
// saved; the simulation rebinds them after load.
type BuildingV1 struct {
	Kind string `json:"kind"`
	Pos  [3]int `json:"pos"`
}

func WriteSnapshot(path string, snap ColonySnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeSnapshotFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeSnapshotFile(path string, snap ColonySnapshotV1) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (ColonySnapshotV1, error) {
	var snap ColonySnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for tooling; gob carries the header too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// Latest returns the newest "<tick>.snap.zst" file in dir, or "" if none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var (
		best     string
		bestTick uint64
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		var tick uint64
		if _, err := fmt.Sscanf(e.Name(), "%d.snap.zst", &tick); err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			best, bestTick = filepath.Join(dir, e.Name()), tick
		}
	}
	return best, nil
}

func FileName(tick uint64) string {
	return fmt.Sprintf("%d.snap.zst", tick)
}
