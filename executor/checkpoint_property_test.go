package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestProperty_CheckpointRestoreRollsBackArbitraryFileTrees validates the
// rollback invariant a Checkpoint exists to provide: whatever a working
// tree looked like at Create time, Restore puts it back exactly, no
// matter how the files were mutated in between (overwritten, emptied, or
// deleted).
func TestProperty_CheckpointRestoreRollsBackArbitraryFileTrees(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("restore reproduces the checkpointed file contents regardless of intervening mutation", prop.ForAll(
		func(names []string, originalContents []string, mutatedContents []string) bool {
			n := len(names)
			if n == 0 {
				return true
			}
			workDir := t.TempDir()
			snapshotDir := t.TempDir()
			cm := NewCheckpointManager(workDir, snapshotDir)

			// Deduplicate names so every file has an unambiguous expected
			// content; later entries win, matching how a second write to
			// the same path behaves on a real filesystem.
			unique := make(map[string]string, n)
			for i, name := range names {
				path := filepath.Join(workDir, "f_"+name+".txt")
				unique[path] = originalContents[i%len(originalContents)]
			}
			for path, content := range unique {
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					t.Logf("write original failed: %v", err)
					return false
				}
			}

			cp, err := cm.Create(context.Background(), true, nil)
			if err != nil {
				t.Logf("create checkpoint failed: %v", err)
				return false
			}

			i := 0
			for path := range unique {
				mutated := mutatedContents[i%len(mutatedContents)]
				i++
				if err := os.WriteFile(path, []byte(mutated), 0o644); err != nil {
					t.Logf("mutate failed: %v", err)
					return false
				}
			}

			if err := cm.Restore(context.Background(), cp); err != nil {
				t.Logf("restore failed: %v", err)
				return false
			}

			for path, want := range unique {
				got, err := os.ReadFile(path)
				if err != nil {
					t.Logf("read after restore failed: %v", err)
					return false
				}
				if string(got) != want {
					t.Logf("restored content mismatch for %s: want %q, got %q", path, want, string(got))
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.Identifier()),
		gen.SliceOfN(4, gen.AlphaString()),
		gen.SliceOfN(4, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestCheckpointManager_RestoreRemovesAddedPaths exercises the edge the
// property above can't reach reliably: a file or directory created after
// the checkpoint has no counterpart in the snapshot, so Restore must
// delete it — the tree after rollback is byte-identical to what Create
// captured, not a forward-only overwrite.
func TestCheckpointManager_RestoreRemovesAddedPaths(t *testing.T) {
	workDir := t.TempDir()
	cm := NewCheckpointManager(workDir, t.TempDir())

	kept := filepath.Join(workDir, "kept.txt")
	require.NoError(t, os.WriteFile(kept, []byte("v1"), 0o644))

	cp, err := cm.Create(context.Background(), true, nil)
	require.NoError(t, err)

	added := filepath.Join(workDir, "added.txt")
	require.NoError(t, os.WriteFile(added, []byte("new"), 0o644))
	addedDir := filepath.Join(workDir, "scratch")
	require.NoError(t, os.MkdirAll(addedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(addedDir, "nested.txt"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(kept, []byte("v2"), 0o644))

	require.NoError(t, cm.Restore(context.Background(), cp))

	data, err := os.ReadFile(kept)
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))

	_, err = os.Stat(added)
	require.True(t, os.IsNotExist(err), "file added after the checkpoint must be removed by restore")
	_, err = os.Stat(addedDir)
	require.True(t, os.IsNotExist(err), "directory added after the checkpoint must be removed by restore")
}

// TestCheckpointManager_RestoreRecreatesDeletedFile covers the opposite
// mutation: a file deleted after the checkpoint comes back on restore.
func TestCheckpointManager_RestoreRecreatesDeletedFile(t *testing.T) {
	workDir := t.TempDir()
	cm := NewCheckpointManager(workDir, t.TempDir())

	doomed := filepath.Join(workDir, "doomed.txt")
	require.NoError(t, os.WriteFile(doomed, []byte("precious"), 0o644))

	cp, err := cm.Create(context.Background(), true, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(doomed))
	require.NoError(t, cm.Restore(context.Background(), cp))

	data, err := os.ReadFile(doomed)
	require.NoError(t, err)
	require.Equal(t, "precious", string(data))
}
