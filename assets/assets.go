package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctgenie/cases"
	"ctgenie/guidelines"
	"ctgenie/ml"
)

const (
	ModelFile        = "xgboost_model.json"
	ScalerFile       = "scaler.json"
	FeatureNamesFile = "feature_names.json"
	MetadataFile     = "model_metadata.json"
)

// Config locates the startup assets. Empty optional paths are skipped.
type Config struct {
	ModelDir       string
	CasesDir       string
	CaseBatches    int
	SimilarCases   string
	GuidelinesPath string
}

// AssetLoadError is fatal: the service cannot start without the named asset.
type AssetLoadError struct {
	Asset string
	Path  string
	Err   error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Asset, e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// Snapshot is everything read from disk at startup. It never changes after Load;
// only the stale flag flips when the files underneath are touched.
type Snapshot struct {
	Service    *ml.Service
	Cases      *cases.Store
	Guidelines *guidelines.Library
	Files      []string

	stale atomic.Bool
}

func (s *Snapshot) Stale() bool {
	return s.stale.Load()
}

func (s *Snapshot) MarkStale() {
	s.stale.Store(true)
}

// Load reads all assets concurrently. Model, scaler and feature list are required;
// cases, similar-case table, guidelines and metadata only log a warning when absent.
func Load(ctx context.Context, cfg Config, logger *zap.Logger) (*Snapshot, error) {
	var (
		booster  *ml.Booster
		scaler   *ml.StandardScaler
		names    []string
		meta     *ml.ModelMetadata
		records  []cases.CaseRecord
		table    map[string]cases.SimilarEntry
		library  *guidelines.Library
		modelDir = cfg.ModelDir
	)
	paths := map[string]string{
		"model":         filepath.Join(modelDir, ModelFile),
		"scaler":        filepath.Join(modelDir, ScalerFile),
		"feature names": filepath.Join(modelDir, FeatureNamesFile),
		"metadata":      filepath.Join(modelDir, MetadataFile),
	}

	g, ctx := errgroup.WithContext(ctx)
	required := func(asset string, load func(path string) error) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := load(paths[asset]); err != nil {
				return &AssetLoadError{Asset: asset, Path: paths[asset], Err: err}
			}
			return nil
		})
	}
	optional := func(asset, path string, load func() error) {
		g.Go(func() error {
			if path == "" {
				return nil
			}
			if err := load(); err != nil {
				logger.Warn("optional asset not loaded", zap.String("asset", asset), zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	required("model", func(path string) (err error) {
		booster, err = ml.LoadBooster(path)
		return err
	})
	required("scaler", func(path string) (err error) {
		scaler, err = ml.LoadScaler(path)
		return err
	})
	required("feature names", func(path string) (err error) {
		names, err = ml.LoadFeatureNames(path)
		return err
	})
	optional("metadata", paths["metadata"], func() (err error) {
		meta, err = ml.LoadMetadata(paths["metadata"])
		return err
	})
	optional("cases", cfg.CasesDir, func() (err error) {
		records, err = cases.LoadBatches(cfg.CasesDir, cfg.CaseBatches, logger)
		return err
	})
	optional("similar cases", cfg.SimilarCases, func() (err error) {
		table, err = cases.LoadSimilarTable(cfg.SimilarCases)
		return err
	})
	optional("guidelines", cfg.GuidelinesPath, func() (err error) {
		library, err = guidelines.Load(cfg.GuidelinesPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	service, err := ml.NewService(names, scaler, booster, meta)
	if err != nil {
		return nil, &AssetLoadError{Asset: "model", Path: modelDir, Err: err}
	}

	snapshot := &Snapshot{
		Service:    service,
		Cases:      cases.NewStore(records, table),
		Guidelines: library,
		Files:      []string{paths["model"], paths["scaler"], paths["feature names"]},
	}
	if meta != nil {
		snapshot.Files = append(snapshot.Files, paths["metadata"])
	}
	if len(records) > 0 {
		for n := 1; n <= cfg.CaseBatches; n++ {
			snapshot.Files = append(snapshot.Files, filepath.Join(cfg.CasesDir, fmt.Sprintf("batch_%03d.json", n)))
		}
	}
	if table != nil {
		snapshot.Files = append(snapshot.Files, cfg.SimilarCases)
	}
	if library != nil {
		snapshot.Files = append(snapshot.Files, cfg.GuidelinesPath)
	}

	info := service.ModelInfo()
	logger.Info("assets loaded",
		zap.String("model_type", info.ModelType),
		zap.String("model_version", info.Version),
		zap.Int("n_features", info.NFeatures),
		zap.Bool("shap_available", info.ShapAvailable),
		zap.Int("cases", snapshot.Cases.Len()),
		zap.Int("similar_entries", snapshot.Cases.TableLen()),
		zap.Bool("guidelines", library != nil),
	)
	return snapshot, nil
}
