package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/listing-matcher/internal/match"
)

//go:embed seed.schema.json
var seedSchemaJSON string

var (
	seedSchemaOnce sync.Once
	seedSchema     *jsonschema.Schema
	seedSchemaErr  error
)

// ModelSeed is the hand-tuned starting point for the scoring model
type ModelSeed struct {
	Weights    match.Weights    `yaml:"weights"`
	Thresholds match.Thresholds `yaml:"thresholds"`
}

// LoadModelSeed reads a YAML seed file. Missing keys keep the built-in defaults.
// An empty path returns the default model.
func LoadModelSeed(path string) (match.Model, error) {
	if path == "" {
		return match.DefaultModel(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return match.Model{}, fmt.Errorf("failed to read model seed %s: %w", path, err)
	}

	if err := validateSeed(data); err != nil {
		return match.Model{}, fmt.Errorf("model seed %s: %w", path, err)
	}

	seed := ModelSeed{Weights: match.DefaultWeights(), Thresholds: match.DefaultThresholds()}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return match.Model{}, fmt.Errorf("failed to parse model seed %s: %w", path, err)
	}

	m := match.Model{Version: 1, Weights: seed.Weights, Thresholds: seed.Thresholds}
	if err := m.Validate(); err != nil {
		return match.Model{}, fmt.Errorf("model seed %s: %w", path, err)
	}
	return m, nil
}

// SaveModelSeed writes the weights and thresholds of a model as a YAML seed
func SaveModelSeed(path string, m match.Model) error {
	data, err := yaml.Marshal(ModelSeed{Weights: m.Weights, Thresholds: m.Thresholds})
	if err != nil {
		return fmt.Errorf("failed to encode model seed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model seed %s: %w", path, err)
	}
	return nil
}

// validateSeed checks the YAML document against the embedded seed schema.
// Unknown keys are rejected so a misspelt weight cannot silently fall back to its default.
func validateSeed(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	if doc == nil {
		return nil
	}

	// round-trip through JSON so numbers reach the validator as json.Number
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to normalize: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("failed to normalize: %w", err)
	}

	schema, err := loadSeedSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", match.ErrInvalidInput, err)
	}
	return nil
}

func loadSeedSchema() (*jsonschema.Schema, error) {
	seedSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("seed.schema.json", strings.NewReader(seedSchemaJSON)); err != nil {
			seedSchemaErr = fmt.Errorf("add seed schema resource: %w", err)
			return
		}
		seedSchema, seedSchemaErr = compiler.Compile("seed.schema.json")
		if seedSchemaErr != nil {
			seedSchemaErr = fmt.Errorf("compile seed schema: %w", seedSchemaErr)
		}
	})
	return seedSchema, seedSchemaErr
}
