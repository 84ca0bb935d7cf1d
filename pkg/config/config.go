// Package config holds the hyperparameters of both model variants.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// ErrMissingFile is returned when a corpus path is not set.
var ErrMissingFile = errors.New("missing corpus file")

// Files names the three corpora of a run.
type Files struct {
	Train string `json:"trainFile"`
	Valid string `json:"validFile"`
	Test  string `json:"testFile"`
}

func (f Files) validate() error {
	for _, p := range []struct{ name, path string }{
		{"trainFile", f.Train},
		{"validFile", f.Valid},
		{"testFile", f.Test},
	} {
		if p.path == "" {
			return fmt.Errorf("%s: %w", p.name, ErrMissingFile)
		}
	}
	return nil
}

// Training holds the settings shared by both variants.
type Training struct {
	Files
	BPTT      int     `json:"bptt"`
	Epochs    int     `json:"nepoch"`
	LR        float64 `json:"lr"`
	ShrinkVal float64 `json:"shrinkVal"`
	// MinLRFraction floors the learning rate at this fraction of LR.
	MinLRFraction float64 `json:"minLRFraction"`
	Init          string  `json:"init"`
	Seed          int64   `json:"seed"`
	// Backend selects the matrix kernels: "loop", "blas" or "auto".
	Backend string `json:"backend"`
}

func (t Training) validate() error {
	if err := t.Files.validate(); err != nil {
		return err
	}
	if t.BPTT <= 0 {
		return fmt.Errorf("bptt must be positive, got %d", t.BPTT)
	}
	if t.Epochs <= 0 {
		return fmt.Errorf("nepoch must be positive, got %d", t.Epochs)
	}
	if t.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %g", t.LR)
	}
	if t.ShrinkVal <= 1 {
		return fmt.Errorf("shrinkVal must be greater than 1, got %g", t.ShrinkVal)
	}
	if t.MinLRFraction <= 0 || t.MinLRFraction > 1 {
		return fmt.Errorf("minLRFraction must be in (0, 1], got %g", t.MinLRFraction)
	}
	if t.Init != model.InitGaussian && t.Init != model.InitDiagonal {
		return fmt.Errorf("unknown init %q", t.Init)
	}
	if _, err := linalg.ParseBackend(t.Backend); err != nil {
		return err
	}
	return nil
}

// CharConfig configures the conditional character model.
type CharConfig struct {
	Training
	Hidden int `json:"nhid"`
	// NGram is the longest history considered for a context key.
	NGram   int `json:"ngram"`
	MinFreq int `json:"minFreq"`
}

// MixedConfig configures the hierarchical word/character model.
type MixedConfig struct {
	Training
	WordHidden int     `json:"nhidw"`
	CharHidden int     `json:"nhidc"`
	V1         int     `json:"V1"`
	V2         int     `json:"V2"`
	Alpha      float64 `json:"alpha"`
}

func DefaultChar() *CharConfig {
	return &CharConfig{
		Training: Training{
			BPTT:          30,
			Epochs:        10,
			LR:            0.1,
			ShrinkVal:     2,
			MinLRFraction: 1e-4,
			Init:          model.InitGaussian,
			Seed:          1,
			Backend:       "auto",
		},
		Hidden:  100,
		NGram:   30,
		MinFreq: 40,
	}
}

func DefaultMixed() *MixedConfig {
	return &MixedConfig{
		Training: Training{
			BPTT:          10,
			Epochs:        1,
			LR:            0.005,
			ShrinkVal:     1.5,
			MinLRFraction: 1e-6,
			Init:          model.InitGaussian,
			Seed:          1,
			Backend:       "auto",
		},
		WordHidden: 200,
		CharHidden: 100,
		V1:         1,
		V2:         2000,
		Alpha:      0.5,
	}
}

// Validate checks if the configuration is usable.
func (c *CharConfig) Validate() error {
	if err := c.Training.validate(); err != nil {
		return err
	}
	if c.Hidden <= 0 {
		return fmt.Errorf("nhid must be positive, got %d", c.Hidden)
	}
	if c.NGram <= 0 {
		return fmt.Errorf("ngram must be positive, got %d", c.NGram)
	}
	if c.MinFreq < 0 {
		return fmt.Errorf("minFreq must not be negative, got %d", c.MinFreq)
	}
	return nil
}

// Validate checks if the configuration is usable.
func (c *MixedConfig) Validate() error {
	if err := c.Training.validate(); err != nil {
		return err
	}
	if c.WordHidden <= 0 || c.CharHidden <= 0 {
		return fmt.Errorf("nhidw and nhidc must be positive, got %d and %d", c.WordHidden, c.CharHidden)
	}
	if c.V1 < 0 {
		return fmt.Errorf("V1 must not be negative, got %d", c.V1)
	}
	if c.V2 < 0 {
		return fmt.Errorf("V2 must not be negative, got %d", c.V2)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0, 1], got %g", c.Alpha)
	}
	return nil
}

// LoadChar overlays the JSON file at path onto the defaults. Validation is
// left to the caller so flags can still be applied.
func LoadChar(path string) (*CharConfig, error) {
	c := DefaultChar()
	if err := load(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadMixed is LoadChar for the hierarchical model.
func LoadMixed(path string) (*MixedConfig, error) {
	c := DefaultMixed()
	if err := load(path, c); err != nil {
		return nil, err
	}
	return c, nil
}

func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}
