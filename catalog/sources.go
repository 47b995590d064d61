package catalog

import (
	"encoding/json"
	"fmt"
	"hordegui/bridge"
	"hordegui/models"
	"os"
	"path/filepath"
)

// ReferenceFileName is written by the worker on its first run
const ReferenceFileName = "models.json"

func init() {
	RegisterSource(referenceFile{})
	RegisterSource(customModels{})
}

// referenceFile reads the worker's models.json
type referenceFile struct{}

func (referenceFile) Name() string { return "models.json" }

func (referenceFile) Models(folder string, _ *bridge.Config) ([]models.ModelInfo, error) {
	path := filepath.Join(folder, ReferenceFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Either a list of models or an object keyed by model name
	var list []models.ModelInfo
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var byName map[string]models.ModelInfo
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	list = make([]models.ModelInfo, 0, len(byName))
	for name, model := range byName {
		if model.Name == "" {
			model.Name = name
		}
		list = append(list, model)
	}
	return list, nil
}

// customModels lists the custom_models entries of bridgeData.yaml
type customModels struct{}

func (customModels) Name() string { return "custom_models" }

func (customModels) Models(folder string, cfg *bridge.Config) ([]models.ModelInfo, error) {
	if cfg == nil || len(cfg.CustomModels) == 0 {
		return nil, fmt.Errorf("no custom models: %w", os.ErrNotExist)
	}

	list := make([]models.ModelInfo, 0, len(cfg.CustomModels))
	for _, cm := range cfg.CustomModels {
		model := models.ModelInfo{
			Name:     cm.Name,
			Type:     "Custom",
			Baseline: cm.Baseline,
			Filepath: cm.Filepath,
		}
		if info, err := os.Stat(cm.Filepath); err == nil {
			model.Filesize = info.Size()
		} else {
			model.Status = StatusMissing
		}
		list = append(list, model)
	}
	return list, nil
}
