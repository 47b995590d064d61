package catalog

import (
	"errors"
	"hordegui/bridge"
	"hordegui/logger"
	"hordegui/models"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Model statuses
const (
	StatusAvailable = "Available"
	StatusSelected  = "Selected"
	StatusSkipped   = "Skipped"
	StatusMissing   = "Missing file"
)

// Source is implemented by anything that can list models of a worker
// installation.
type Source interface {
	Name() string

	// Models lists the models found for the worker in folder. cfg is nil
	// when the worker has no readable configuration. A source with nothing
	// to read returns an error wrapping os.ErrNotExist.
	Models(folder string, cfg *bridge.Config) ([]models.ModelInfo, error)
}

// global registry that sources populate from their init() functions.
var registeredSources []Source

// RegisterSource makes a source available to new managers.
func RegisterSource(s Source) {
	registeredSources = append(registeredSources, s)
}

// Manager is the façade the rest of the application talks to. It merges
// the results of every registered source.
type Manager struct {
	sources []Source
}

// NewManager constructs a manager using the registered source list.
func NewManager() *Manager {
	return &Manager{sources: registeredSources}
}

// Load lists the models of the worker in folder. Sources without data are
// skipped; other failures are returned together with whatever was found.
func (m *Manager) Load(folder string) ([]models.ModelInfo, error) {
	var cfg *bridge.Config
	if doc, err := bridge.Load(filepath.Join(folder, models.ConfigFileName)); err == nil {
		cfg = &doc.Config
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Log.WithError(err).Warn("Could not read worker configuration for model status")
	}

	var all []models.ModelInfo
	var errs []error
	for _, s := range m.sources {
		found, err := s.Models(folder, cfg)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Log.Debugf("Model source %s has no data", s.Name())
				continue
			}
			errs = append(errs, err)
			continue
		}
		for i := range found {
			found[i].Source = s.Name()
			if found[i].Type == "" {
				found[i].Type = "Unknown"
			}
			if found[i].Status == "" {
				found[i].Status = status(found[i].Name, cfg)
			}
		}
		all = append(all, found...)
	}

	return all, errors.Join(errs...)
}

// status derives a model's status from the worker configuration
func status(name string, cfg *bridge.Config) string {
	if cfg == nil {
		return StatusAvailable
	}
	for _, skip := range cfg.ModelsToSkip {
		if strings.EqualFold(skip, name) {
			return StatusSkipped
		}
	}
	for _, load := range cfg.ModelsToLoad {
		if strings.EqualFold(load, name) {
			return StatusSelected
		}
	}
	return StatusAvailable
}

// Group is the models of one type
type Group struct {
	Type   string
	Models []models.ModelInfo
}

// GroupByType groups models by type, types and names in sorted order
func GroupByType(list []models.ModelInfo) []Group {
	byType := make(map[string][]models.ModelInfo)
	for _, model := range list {
		byType[model.Type] = append(byType[model.Type], model)
	}

	groups := make([]Group, 0, len(byType))
	for t, ms := range byType {
		sort.SliceStable(ms, func(i, j int) bool {
			return strings.ToLower(ms[i].Name) < strings.ToLower(ms[j].Name)
		})
		groups = append(groups, Group{Type: t, Models: ms})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Type < groups[j].Type })
	return groups
}

// SizeLabel renders a model's file size
func SizeLabel(model models.ModelInfo) string {
	if model.Filesize <= 0 {
		return "Unknown"
	}
	return humanize.IBytes(uint64(model.Filesize))
}

// CustomModelHelp explains how to add custom models
const CustomModelHelp = `To add custom models, edit the 'custom_models' section in your bridgeData.yaml file.

The format is:

custom_models:
  - name: My Custom Model
    baseline: stable_diffusion_xl
    filepath: /path/to/model/file.safetensors`
