/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// profilesFile is the YAML shape of an operator-defined weight profile set.
type profilesFile struct {
	Algorithms []profileEntry `yaml:"algorithms"`
}

type profileEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Weights     struct {
		Genre      float64 `yaml:"genre"`
		Artist     float64 `yaml:"artist"`
		Popularity float64 `yaml:"popularity"`
		Recency    float64 `yaml:"recency"`
		Diversity  float64 `yaml:"diversity"`
	} `yaml:"weights"`
}

// LoadProfiles reads extra weight profiles from a YAML file and registers
// them alongside the built-ins. A profile reusing a built-in name overrides
// it, letting operators retune the rotation without a deploy.
func LoadProfiles(path string) ([]Algorithm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var parsed profilesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	loaded := make([]Algorithm, 0, len(parsed.Algorithms))
	for _, entry := range parsed.Algorithms {
		alg := Algorithm{
			Name:        entry.Name,
			Description: entry.Description,
			Weights: Weights{
				Genre:      entry.Weights.Genre,
				Artist:     entry.Weights.Artist,
				Popularity: entry.Weights.Popularity,
				Recency:    entry.Weights.Recency,
				Diversity:  entry.Weights.Diversity,
			},
		}
		if err := validateProfile(alg); err != nil {
			return nil, err
		}
		loaded = append(loaded, alg)
	}

	for _, alg := range loaded {
		algorithms[alg.Name] = alg
	}
	return loaded, nil
}

func validateProfile(alg Algorithm) error {
	if alg.Name == "" {
		return fmt.Errorf("profile with empty name")
	}
	w := alg.Weights
	total := 0.0
	for _, v := range []float64{w.Genre, w.Artist, w.Popularity, w.Recency, w.Diversity} {
		if v < 0 || v > 1 {
			return fmt.Errorf("profile %q: weight %v outside [0,1]", alg.Name, v)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("profile %q: all weights zero", alg.Name)
	}
	return nil
}
