package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DirSource replays checkpoints stored as <sequence>.json files in a directory.
type DirSource struct {
	dir    string
	next   uint64
	follow time.Duration
	log    *slog.Logger
}

// NewDirSource starts at sequence number from. With a positive follow
// interval the source polls for new files instead of returning io.EOF.
func NewDirSource(dir string, from uint64, follow time.Duration, log *slog.Logger) *DirSource {
	return &DirSource{dir: dir, next: from, follow: follow, log: log}
}

func (d *DirSource) Next(ctx context.Context) (*Checkpoint, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp, err := d.read(d.next)
		if err == nil {
			d.next = cp.SequenceNumber + 1
			return cp, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		later, ok, err := d.lowestAfter(d.next)
		if err != nil {
			return nil, err
		}
		if ok {
			d.log.Warn("checkpoint gap", "missing_from", d.next, "resume_at", later)
			d.next = later
			continue
		}
		if d.follow <= 0 {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.follow):
		}
	}
}

func (d *DirSource) read(seq uint64) (*Checkpoint, error) {
	path := filepath.Join(d.dir, strconv.FormatUint(seq, 10)+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if cp.SequenceNumber != seq {
		return nil, fmt.Errorf("%s: file holds checkpoint %d", path, cp.SequenceNumber)
	}
	return &cp, nil
}

// lowestAfter finds the smallest stored sequence number >= seq.
func (d *DirSource) lowestAfter(seq uint64) (uint64, bool, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, false, err
	}
	var (
		best  uint64
		found bool
	)
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(name, 10, 64)
		// read only opens canonical names, so 07.json is never a candidate
		if err != nil || n < seq || strconv.FormatUint(n, 10) != name {
			continue
		}
		if !found || n < best {
			best, found = n, true
		}
	}
	return best, found, nil
}

// WriteFile stores cp in the layout DirSource reads.
func WriteFile(dir string, cp *Checkpoint) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, strconv.FormatUint(cp.SequenceNumber, 10)+".json"), b, 0o644)
}
