package texgen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meshkit/img2mesh/internal/infra/httpclient"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/service/imageproc"
	"github.com/meshkit/img2mesh/internal/service/shapegen"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// TexturedMesh is the texture stage's output. When texturing is unavailable
// or fails, Mesh is the untextured input tagged ShapeOnly; Reason says why.
type TexturedMesh struct {
	Mesh      *shapegen.Mesh
	ShapeOnly bool
	Reason    string
}

// Painter is the texture service call boundary: (mesh, image) -> mesh.
type Painter interface {
	Paint(ctx context.Context, mesh *shapegen.Mesh, img *imageproc.CanonicalImage) (*shapegen.Mesh, error)
}

// Synthesizer applies the degradation policy around an optional Painter.
// Unlike every other stage, it never fails the pipeline: a missing or broken
// texture service yields the untextured mesh, not an error.
type Synthesizer struct {
	painter Painter // nil when texturing is not deployed
	logger  *logger.Logger
}

func NewSynthesizer(painter Painter, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		painter: painter,
		logger:  log,
	}
}

func (s *Synthesizer) Texture(ctx context.Context, mesh *shapegen.Mesh, img *imageproc.CanonicalImage) *TexturedMesh {
	if s.painter == nil {
		s.logger.Info("texture service not configured, returning shape-only mesh")
		return &TexturedMesh{
			Mesh:      mesh,
			ShapeOnly: true,
			Reason:    "no texture pipeline",
		}
	}

	textured, err := s.painter.Paint(ctx, mesh, img)
	if err != nil {
		s.logger.Warn("texture generation failed, returning shape-only mesh", "error", err)
		return &TexturedMesh{
			Mesh:      mesh,
			ShapeOnly: true,
			Reason:    "texture unavailable",
		}
	}

	return &TexturedMesh{Mesh: textured}
}

// Client is the HTTP Painter against the texture inference server.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, client *httpclient.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     log,
	}
}

type paintRequest struct {
	Mesh  string `json:"mesh"`
	Image string `json:"image"`
}

func (c *Client) Paint(ctx context.Context, mesh *shapegen.Mesh, img *imageproc.CanonicalImage) (*shapegen.Mesh, error) {
	png, err := img.PNG()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTextureGen, "failed to encode image for texture service")
	}

	body, err := json.Marshal(paintRequest{
		Mesh:  base64.StdEncoding.EncodeToString(mesh.Data),
		Image: base64.StdEncoding.EncodeToString(png),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTextureGen, "failed to marshal texture request")
	}

	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/v1/texture", body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTextureGen, "texture generation request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTextureGen, "failed to read texture response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("texture API error", "status", resp.StatusCode, "body", string(data))
		return nil, errors.New(errors.ErrCodeTextureGen, fmt.Sprintf("texture generation returned %d", resp.StatusCode))
	}

	if !shapegen.IsGLB(data) {
		return nil, errors.New(errors.ErrCodeTextureGen, "texture service returned a non-GLB payload")
	}

	return &shapegen.Mesh{Data: data}, nil
}
