package executor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ignoredSnapshotDirs lists paths excluded from working-tree snapshots:
// version control and cache directories.
var ignoredSnapshotDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".cache":       true,
	"__pycache__":  true,
}

// Checkpoint is a restore point captured before a risky transition. It
// is owned exclusively by the transaction that created it —
// never shared across transactions.
type Checkpoint struct {
	CheckpointID         string
	Timestamp            time.Time
	FilesystemSnapshotRef string
	EnvSnapshot          map[string]string
	Metadata             map[string]any
}

// CheckpointManager creates and restores filesystem snapshots. A
// snapshot is a copy of selected files under the working directory;
// restoring it reproduces the captured bytes for
// every path under the snapshot root, without requiring a COW filesystem.
type CheckpointManager struct {
	root       string // working tree root being snapshotted
	snapshotDir string // scratch directory for snapshot copies
	mu         sync.Mutex
}

// NewCheckpointManager creates a manager rooted at workDir, storing
// snapshots under a sibling scratch directory.
func NewCheckpointManager(workDir, snapshotDir string) *CheckpointManager {
	return &CheckpointManager{root: workDir, snapshotDir: snapshotDir}
}

// Create captures a new checkpoint: the current environment and, if
// enabled, a copy of the working tree excluding ignored paths. The copy has
// a 10s deadline (or ctx's, if sooner); when it passes, the partial copy is
// removed and the context error is returned.
func (cm *CheckpointManager) Create(ctx context.Context, enableSnapshots bool, metadata map[string]any) (*Checkpoint, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp := &Checkpoint{
		CheckpointID: uuid.NewString(),
		Timestamp:    time.Now(),
		EnvSnapshot:  snapshotEnv(),
		Metadata:     metadata,
	}

	if enableSnapshots && cm.root != "" {
		snapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		dest := filepath.Join(cm.snapshotDir, cp.CheckpointID)
		if err := copyTree(snapCtx, cm.root, dest, filepath.Base(cm.snapshotDir)); err != nil {
			_ = os.RemoveAll(dest)
			return nil, err
		}
		cp.FilesystemSnapshotRef = dest
	}

	return cp, nil
}

// Restore brings the working tree root back to the checkpoint's snapshot:
// every path with no counterpart in the snapshot is deleted, then the
// snapshot is copied over, so the result is byte-identical for any path
// under the root rather than a forward-only overwrite. Environment
// variables are process-wide and documented as best-effort — they are not
// restored.
func (cm *CheckpointManager) Restore(ctx context.Context, cp *Checkpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cp.FilesystemSnapshotRef == "" {
		return nil
	}
	if err := cm.removeExtraneous(cp.FilesystemSnapshotRef); err != nil {
		return err
	}
	return copyTree(context.Background(), cp.FilesystemSnapshotRef, cm.root, filepath.Base(cm.snapshotDir))
}

// removeExtraneous deletes every path under the working root absent from
// the snapshot. Ignored directories and the snapshot scratch directory
// itself are left alone.
func (cm *CheckpointManager) removeExtraneous(snapshot string) error {
	skip := filepath.Base(cm.snapshotDir)
	return filepath.WalkDir(cm.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A parent removed below can make pending entries vanish
			// mid-walk.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(cm.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ignoredSnapshotDirs[d.Name()] || d.Name() == skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(snapshot, rel)); os.IsNotExist(statErr) {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return rmErr
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
}

// Discard removes a checkpoint's snapshot directory once it is no longer
// needed (committed transaction, or superseded by a later checkpoint).
func (cm *CheckpointManager) Discard(cp *Checkpoint) error {
	if cp.FilesystemSnapshotRef == "" {
		return nil
	}
	return os.RemoveAll(cp.FilesystemSnapshotRef)
}

func snapshotEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}

// copyTree copies src over dst, creating directories as needed. Entries
// named in skipNames (plus the standing ignore set) are not copied; the
// snapshot scratch directory passes through here so snapshots never
// include earlier snapshots. The walk stops with ctx's error once ctx is done.
func copyTree(ctx context.Context, src, dst string, skipNames ...string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	skip := make(map[string]bool, len(skipNames))
	for _, n := range skipNames {
		skip[n] = true
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && (ignoredSnapshotDirs[d.Name()] || skip[d.Name()]) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
