package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hscore/internal/model"
)

// Manifest is the YAML sidecar written next to an export.
type Manifest struct {
	GeneratedAt time.Time            `yaml:"generated_at"`
	Output      string               `yaml:"output"`
	Subzones    int                  `yaml:"subzones"`
	CRS         ManifestCRS          `yaml:"crs"`
	Weights     ManifestWeights      `yaml:"weights"`
	Inputs      map[string]InputInfo `yaml:"inputs"`
	Stats       Stats                `yaml:"stats"`
	Steps       []StepResult         `yaml:"steps"`
	Top         []ManifestEntry      `yaml:"top"`
}

// ManifestCRS lists the frames used during the run.
type ManifestCRS struct {
	Working   string `yaml:"working"`
	Projected string `yaml:"projected"`
	Output    string `yaml:"output"`
}

// ManifestWeights records the composite weights.
type ManifestWeights struct {
	Demand float64 `yaml:"demand"`
	Supply float64 `yaml:"supply"`
	Access float64 `yaml:"access"`
	MRT    float64 `yaml:"mrt"`
	Bus    float64 `yaml:"bus"`
}

// ManifestEntry is one ranked subzone.
type ManifestEntry struct {
	Rank    string  `yaml:"rank"`
	Subzone string  `yaml:"subzone"`
	Name    string  `yaml:"name,omitempty"`
	HScore  float64 `yaml:"h_score"`
}

// ManifestPath returns the sidecar path for an export path.
func ManifestPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".manifest.yaml"
}

// NewManifest summarises a run. top caps the ranked list.
func NewManifest(res *Result, output string, top int) *Manifest {
	m := &Manifest{
		GeneratedAt: res.StartedAt,
		Output:      output,
		Subzones:    len(res.Subzones),
		CRS: ManifestCRS{
			Working:   res.Working.Code,
			Projected: res.Projected.Code,
			Output:    "EPSG:4326",
		},
		Weights: ManifestWeights{
			Demand: res.Weights.Demand,
			Supply: res.Weights.Supply,
			Access: res.Weights.Access,
			MRT:    res.Weights.MRT,
			Bus:    res.Weights.Bus,
		},
		Inputs: res.Inputs,
		Stats:  res.Stats,
		Steps:  res.Steps,
	}
	for _, s := range res.Top(top) {
		e := ManifestEntry{
			Rank:    model.RankLabel(s.HRank, len(res.Subzones)),
			Subzone: s.Subzone,
			HScore:  s.HScore,
		}
		if s.Name != nil {
			e.Name = *s.Name
		}
		m.Top = append(m.Top, e)
	}
	return m
}

// WriteManifest writes m as YAML.
func WriteManifest(path string, m *Manifest) error {
	return writeAtomic(path, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return eris.Wrap(err, "pipeline: encode manifest")
		}
		return enc.Close()
	})
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode manifest")
	}
	return &m, nil
}

// topByRank returns up to n subzones ordered by rank, ties by subzone code.
func topByRank(subzones []model.ScoredSubzone, n int) []model.ScoredSubzone {
	sorted := append([]model.ScoredSubzone(nil), subzones...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].HRank != sorted[j].HRank {
			return sorted[i].HRank < sorted[j].HRank
		}
		return sorted[i].Subzone < sorted[j].Subzone
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
