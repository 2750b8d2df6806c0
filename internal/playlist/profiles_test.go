package playlist

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	return path
}

func TestLoadProfilesRegistersAlgorithm(t *testing.T) {
	path := writeProfiles(t, `
algorithms:
  - name: vinylNight
    description: Late night deep cuts
    weights:
      genre: 0.3
      artist: 0.2
      popularity: 0.05
      recency: 0.25
      diversity: 0.2
`)

	loaded, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	t.Cleanup(func() { delete(algorithms, "vinylNight") })

	if len(loaded) != 1 {
		t.Fatalf("loaded %d profiles, want 1", len(loaded))
	}
	alg, ok := AlgorithmByName("vinylNight")
	if !ok {
		t.Fatal("loaded profile not selectable")
	}
	if alg.Weights.Genre != 0.3 || alg.Weights.Recency != 0.25 {
		t.Fatalf("weights %+v not taken from file", alg.Weights)
	}
}

func TestLoadProfilesOverridesBuiltin(t *testing.T) {
	original := algorithms["balanced"]
	t.Cleanup(func() { algorithms["balanced"] = original })

	path := writeProfiles(t, `
algorithms:
  - name: balanced
    description: Retuned rotation
    weights:
      genre: 0.4
      artist: 0.1
      popularity: 0.1
      recency: 0.2
      diversity: 0.2
`)
	if _, err := LoadProfiles(path); err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	alg, _ := AlgorithmByName("balanced")
	if alg.Weights.Genre != 0.4 {
		t.Fatalf("built-in not overridden: %+v", alg.Weights)
	}
}

func TestLoadProfilesRejectsBadWeights(t *testing.T) {
	path := writeProfiles(t, `
algorithms:
  - name: broken
    weights:
      genre: 1.5
`)
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("out-of-range weight must be rejected")
	}
	if _, ok := AlgorithmByName("broken"); ok {
		t.Fatal("invalid profile must not be registered")
	}
}

func TestLoadProfilesRejectsUnnamed(t *testing.T) {
	path := writeProfiles(t, `
algorithms:
  - description: nameless
    weights:
      genre: 0.5
      diversity: 0.5
`)
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("unnamed profile must be rejected")
	}
}

func TestLoadProfilesMissingFile(t *testing.T) {
	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must be reported")
	}
}
