/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist builds ordered track sequences for the live rotation
// using selectable weighting algorithms.
package playlist

import "sort"

// Weights are the five scoring dimensions of an algorithm, each in [0,1].
type Weights struct {
	Genre      float64 `json:"genre"`
	Artist     float64 `json:"artist"`
	Popularity float64 `json:"popularity"`
	Recency    float64 `json:"recency"`
	Diversity  float64 `json:"diversity"`
}

// Algorithm is a named weighting profile selectable by admin tooling.
type Algorithm struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weights     Weights `json:"weights"`
}

var algorithms = map[string]Algorithm{
	"balanced": {
		Name:        "balanced",
		Description: "Even rotation across genres and artists",
		Weights:     Weights{Genre: 0.2, Artist: 0.2, Popularity: 0.2, Recency: 0.2, Diversity: 0.2},
	},
	"discovery": {
		Name:        "discovery",
		Description: "Surfaces fresh and rarely played records",
		Weights:     Weights{Genre: 0.1, Artist: 0.15, Popularity: 0.05, Recency: 0.4, Diversity: 0.3},
	},
	"popular": {
		Name:        "popular",
		Description: "Leans on proven crowd favourites",
		Weights:     Weights{Genre: 0.1, Artist: 0.1, Popularity: 0.5, Recency: 0.1, Diversity: 0.2},
	},
	"genreSpecific": {
		Name:        "genreSpecific",
		Description: "Focuses on one genre with light variety",
		Weights:     Weights{Genre: 0.5, Artist: 0.15, Popularity: 0.1, Recency: 0.1, Diversity: 0.15},
	},
}

// DefaultAlgorithm is used when a request names no algorithm.
const DefaultAlgorithm = "balanced"

// Algorithms returns the catalog of named profiles in stable name order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(algorithms))
	for _, alg := range algorithms {
		out = append(out, alg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AlgorithmByName resolves a named profile.
func AlgorithmByName(name string) (Algorithm, bool) {
	if name == "" {
		name = DefaultAlgorithm
	}
	alg, ok := algorithms[name]
	return alg, ok
}
