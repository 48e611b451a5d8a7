package ensemble

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Artifact file names inside the model directory.
const (
	ScalerFile = "preprocessor.json"
	ConfigFile = "ensemble_config.json"
)

// ModelFiles maps classifier names to their artifact file, in ensemble order.
var ModelFiles = []struct {
	Name string
	File string
}{
	{Name: "rf", File: "rf_model.json"},
	{Name: "xgb", File: "xgb_model.json"},
}

// EnsembleConfig is the persisted ensemble configuration.
type EnsembleConfig struct {
	ModelWeights map[string]float64 `json:"model_weights"`
	FeatureNames []string           `json:"feature_names"`
	Thresholds   *Thresholds        `json:"thresholds,omitempty"`
}

// Load reads every artifact from dir. Missing or unreadable artifacts are
// logged and left out; Load never fails. With no artifacts at all the result
// is an empty set that scores in fallback mode.
func Load(dir string, logger *slog.Logger) *ArtifactSet {
	var classifiers []Classifier
	for _, mf := range ModelFiles {
		m, err := loadModel(filepath.Join(dir, mf.File), mf.Name)
		if err != nil {
			logArtifactError(logger, mf.File, err)
			continue
		}
		classifiers = append(classifiers, m)
		logger.Info("model loaded", "model", mf.Name, "kind", m.Kind, "trees", len(m.Trees))
	}

	var scaler Scaler
	if sc, err := loadScaler(filepath.Join(dir, ScalerFile)); err != nil {
		logArtifactError(logger, ScalerFile, err)
	} else {
		scaler = sc
	}

	cfg, err := loadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		logArtifactError(logger, ConfigFile, err)
		cfg = &EnsembleConfig{}
	}
	thresholds := DefaultThresholds
	if cfg.Thresholds != nil {
		if err := cfg.Thresholds.Validate(); err != nil {
			logger.Warn("invalid thresholds, using defaults", "error", err)
		} else {
			thresholds = *cfg.Thresholds
		}
	}

	weights := usableWeights(cfg.ModelWeights, logger)
	set, err := NewArtifactSet(classifiers, weights, scaler, cfg.FeatureNames, thresholds)
	if err != nil {
		logger.Error("invalid artifact set, scoring in fallback mode", "error", err)
		return EmptyArtifactSet()
	}
	if len(classifiers) == 0 {
		logger.Warn("no classifiers loaded, scoring in fallback mode", "dir", dir)
	} else if set.totalWeight() == 0 {
		logger.Warn("all ensemble weights are zero, averaging classifiers equally")
	}
	return set
}

// usableWeights drops negative or non-finite weights so the affected models
// get DefaultWeight instead of invalidating the whole set.
func usableWeights(weights map[string]float64, logger *slog.Logger) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		if !validWeight(w) {
			logger.Warn("invalid model weight, using default", "model", name, "weight", w, "default", DefaultWeight)
			continue
		}
		out[name] = w
	}
	return out
}

func logArtifactError(logger *slog.Logger, file string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("artifact not found", "file", file)
		return
	}
	logger.Warn("artifact unusable", "file", file, "error", err)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadModel(path, name string) (*TreeEnsemble, error) {
	var m TreeEnsemble
	if err := readJSON(path, &m); err != nil {
		return nil, err
	}
	if m.ModelName == "" {
		m.ModelName = name
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	return &m, nil
}

func loadScaler(path string) (*StandardScaler, error) {
	var s StandardScaler
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func loadConfig(path string) (*EnsembleConfig, error) {
	var c EnsembleConfig
	if err := readJSON(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
