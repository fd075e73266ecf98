package pipeline

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hscore/internal/model"
)

// WriteGeoJSON writes subzones as a FeatureCollection. The file is written
// to a sibling temp file and renamed into place.
func WriteGeoJSON(path string, subzones []model.ScoredSubzone) error {
	return writeAtomic(path, func(f *os.File) error {
		return model.EncodeFeatureCollection(f, subzones)
	})
}

func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "pipeline: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "pipeline: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return nil
}
