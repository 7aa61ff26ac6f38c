package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/service/shapegen"
	"github.com/meshkit/img2mesh/internal/service/texgen"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// Service writes meshes into a scoped temporary area and enforces the output
// size ceiling. The caller deletes files after reading them back; this
// directory is not long-term storage.
type Service struct {
	dir      string
	maxBytes int64
	logger   *logger.Logger
}

func New(dir string, maxBytes int64, log *logger.Logger) *Service {
	return &Service{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   log,
	}
}

// Export writes the mesh to disk under the given filename. Oversized output
// is deleted before the size-limit error is returned, so no exit path leaves
// an over-ceiling file behind.
func (s *Service) Export(mesh *texgen.TexturedMesh, filename string) (string, error) {
	if mesh == nil || mesh.Mesh == nil || len(mesh.Mesh.Data) == 0 {
		return "", errors.New(errors.ErrCodeExport, "no mesh data to export")
	}
	if !shapegen.IsGLB(mesh.Mesh.Data) {
		return "", errors.New(errors.ErrCodeExport, "mesh is not a valid GLB container")
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExport, "failed to create output directory")
	}

	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, mesh.Mesh.Data, 0644); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExport, "failed to write model file")
	}

	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, errors.ErrCodeExport, "failed to stat model file")
	}

	if info.Size() > s.maxBytes {
		os.Remove(path)
		return "", errors.New(errors.ErrCodeSizeLimit, fmt.Sprintf(
			"File too large: %.1fMB (max: %.1fMB)",
			float64(info.Size())/(1024*1024), float64(s.maxBytes)/(1024*1024)))
	}

	s.logger.Info("model exported",
		"path", path,
		"size_bytes", info.Size(),
		"shape_only", mesh.ShapeOnly,
	)

	return path, nil
}
