package trace

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/symlift/symlift/pkg/symexec"
)

// Checkpoint pairs a State snapshot with the program position it was
// taken at, so exploration can resume from disk instead of from
// scratch: saved state plus where to pick back up, no live
// collaborator handles.
type Checkpoint struct {
	State    symexec.StateSnapshot
	NextAddr uint64
}

// SaveCheckpoint writes ckpt to path as gob.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: save checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(ckpt); err != nil {
		return fmt.Errorf("trace: save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a Checkpoint previously written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: load checkpoint: %w", err)
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("trace: load checkpoint: %w", err)
	}
	return &ckpt, nil
}
