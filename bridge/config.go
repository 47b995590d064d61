// Package bridge reads and writes the worker's bridgeData.yaml.
package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// TemplateFileName is shipped with every worker checkout.
const TemplateFileName = "bridgeData_template.yaml"

var (
	// ErrTemplateNotFound is returned when neither the config nor its
	// template exist.
	ErrTemplateNotFound = errors.New("configuration template not found")
	// ErrOutOfRange is returned by Validate for numeric fields outside the
	// range the worker accepts.
	ErrOutOfRange = errors.New("value out of range")
)

// CustomModel is an entry of the custom_models list
type CustomModel struct {
	Name     string `yaml:"name"`
	Baseline string `yaml:"baseline"`
	Filepath string `yaml:"filepath"`
}

// Config holds the keys of bridgeData.yaml this application edits
type Config struct {
	APIKey      string `yaml:"horde_api_key"`
	DreamerName string `yaml:"dreamer_name"`
	NSFW        bool   `yaml:"nsfw"`

	ModelsToLoad []string `yaml:"models_to_load"`
	ModelsToSkip []string `yaml:"models_to_skip"`

	MaxThreads     int  `yaml:"max_threads"`
	MaxPower       int  `yaml:"max_power"`
	QueueSize      int  `yaml:"queue_size"`
	SafetyOnGPU    bool `yaml:"safety_on_gpu"`
	HighMemoryMode bool `yaml:"high_memory_mode"`
	MaxBatch       int  `yaml:"max_batch"`

	AllowLora           bool `yaml:"allow_lora"`
	AllowControlnet     bool `yaml:"allow_controlnet"`
	AllowSDXLControlnet bool `yaml:"allow_sdxl_controlnet"`
	AllowPostProcessing bool `yaml:"allow_post_processing"`

	CustomModels []CustomModel `yaml:"custom_models,omitempty"`
}

// DefaultConfig returns the values used for keys missing from the file
func DefaultConfig() Config {
	return Config{
		MaxThreads: 1,
		MaxPower:   32,
		QueueSize:  1,
		MaxBatch:   4,
	}
}

type bound struct {
	name     string
	value    int
	min, max int
}

// Validate checks the numeric fields against the ranges the worker accepts
func (c *Config) Validate() error {
	var errs []error
	for _, b := range []bound{
		{"max_threads", c.MaxThreads, 1, 8},
		{"max_power", c.MaxPower, 8, 128},
		{"queue_size", c.QueueSize, 0, 4},
		{"max_batch", c.MaxBatch, 1, 16},
	} {
		if b.value < b.min || b.value > b.max {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d, got %d: %w",
				b.name, b.min, b.max, b.value, ErrOutOfRange))
		}
	}
	return errors.Join(errs...)
}

// MaskedAPIKey returns the API key with all but the last four characters hidden
func (c *Config) MaskedAPIKey() string {
	if c.APIKey == "" {
		return "(not set)"
	}
	if len(c.APIKey) <= 4 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
}

// ParseList splits newline separated text into trimmed, non-empty entries
func ParseList(text string) []string {
	items := []string{}
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// FormatList is the inverse of ParseList
func FormatList(items []string) string {
	return strings.Join(items, "\n")
}
