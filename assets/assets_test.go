package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var modelFiles = []string{ModelFile, ScalerFile, FeatureNamesFile, MetadataFile}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.Create(dst)
	require.NoError(t, err)
	defer out.Close()
	_, err = io.Copy(out, in)
	require.NoError(t, err)
}

// fixtureConfig copies the shared fixtures into a temp dir so tests may mutate them.
func fixtureConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	casesDir := filepath.Join(root, "cases")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.MkdirAll(casesDir, 0o755))
	for _, name := range modelFiles {
		copyFile(t, filepath.Join("..", "ml", "testdata", name), filepath.Join(modelDir, name))
	}
	for _, name := range []string{"batch_001.json", "batch_003.json"} {
		copyFile(t, filepath.Join("..", "cases", "testdata", name), filepath.Join(casesDir, name))
	}
	similar := filepath.Join(root, "similar_cases_database.json")
	copyFile(t, filepath.Join("..", "cases", "testdata", "similar_cases_database.json"), similar)
	guide := filepath.Join(root, "guidelines.json")
	copyFile(t, filepath.Join("..", "guidelines", "testdata", "ctg_interpretation_guidelines.json"), guide)
	return Config{
		ModelDir:       modelDir,
		CasesDir:       casesDir,
		CaseBatches:    3,
		SimilarCases:   similar,
		GuidelinesPath: guide,
	}
}

func TestLoad(t *testing.T) {
	snapshot, err := Load(context.Background(), fixtureConfig(t), zap.NewNop())
	require.NoError(t, err)

	info := snapshot.Service.ModelInfo()
	assert.Equal(t, 29, info.NFeatures)
	assert.True(t, info.ShapAvailable)
	assert.Equal(t, 4, snapshot.Cases.Len())
	require.NotNil(t, snapshot.Guidelines)
	assert.Equal(t, 5, snapshot.Guidelines.Len())
	assert.False(t, snapshot.Stale())
}

func TestLoadMissingModelIsFatal(t *testing.T) {
	cfg := fixtureConfig(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.ModelDir, ModelFile)))

	_, err := Load(context.Background(), cfg, zap.NewNop())
	var loadErr *AssetLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "model", loadErr.Asset)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadFeatureCountMismatchIsFatal(t *testing.T) {
	cfg := fixtureConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ModelDir, FeatureNamesFile), []byte(`["LB","AC"]`), 0o644))

	_, err := Load(context.Background(), cfg, zap.NewNop())
	var loadErr *AssetLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestLoadOptionalAssetsMissing(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.GuidelinesPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.CasesDir = ""
	require.NoError(t, os.Remove(filepath.Join(cfg.ModelDir, MetadataFile)))

	snapshot, err := Load(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, snapshot.Guidelines)
	assert.Equal(t, 0, snapshot.Cases.Len())
	assert.Equal(t, "Unknown", snapshot.Service.ModelInfo().ModelType)
}

func TestWatcherMarksStale(t *testing.T) {
	cfg := fixtureConfig(t)
	snapshot, err := Load(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	watcher, err := NewWatcher(snapshot, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	unrelated := filepath.Join(cfg.ModelDir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, snapshot.Stale())

	f, err := os.OpenFile(filepath.Join(cfg.ModelDir, ScalerFile), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, snapshot.Stale, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestShippedModelIsMarkedDemo(t *testing.T) {
	snapshot, err := Load(context.Background(), Config{ModelDir: filepath.Join("..", "data", "models")}, zap.NewNop())
	require.NoError(t, err)

	info := snapshot.Service.ModelInfo()
	assert.Nil(t, info.TestAccuracy, "the demo model has no measured accuracy")
	assert.Contains(t, info.Description, "demo")
	assert.Equal(t, 29, info.NFeatures)
}
