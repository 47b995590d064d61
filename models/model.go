package models

// ModelInfo describes a model known to the worker
type ModelInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Filesize int64  `json:"filesize"`
	Baseline string `json:"baseline,omitempty"`
	Filepath string `json:"filepath,omitempty"`

	Source string `json:"-"` // Which catalog source reported it
	Status string `json:"-"` // Available, Selected, Skipped or Missing file
}
