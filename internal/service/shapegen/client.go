package shapegen

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
	"github.com/meshkit/img2mesh/pkg/errors"
)

// Mesh is the opaque untextured surface produced by the shape service,
// carried as a glTF-binary blob.
type Mesh struct {
	Data []byte
}

// Params are the sampler constants sent with every synthesis call. They are
// fixed per deployment so that identical inputs reproduce identical meshes.
type Params struct {
	InferenceSteps   int
	OctreeResolution int
	NumChunks        int
	Seed             int64
}

type Client struct {
	baseURL         string
	params          Params
	releaseAfterRun bool
	httpClient      *httpclient.Client
	logger          *logger.Logger
}

func New(baseURL string, params Params, releaseAfterRun bool, client *httpclient.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:         baseURL,
		params:          params,
		releaseAfterRun: releaseAfterRun,
		httpClient:      client,
		logger:          log,
	}
}

type synthesizeRequest struct {
	Image             string `json:"image"`
	NumInferenceSteps int    `json:"num_inference_steps"`
	OctreeResolution  int    `json:"octree_resolution"`
	NumChunks         int    `json:"num_chunks"`
	Seed              int64  `json:"seed"`
}

// Synthesize runs the shape service on a canonical image and returns the
// untextured mesh. This stage is mandatory: any failure aborts the pipeline.
func (c *Client) Synthesize(ctx context.Context, img *imageproc.CanonicalImage) (*Mesh, error) {
	png, err := img.PNG()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeShapeGen, "failed to encode image for shape service")
	}

	body, err := json.Marshal(synthesizeRequest{
		Image:             base64.StdEncoding.EncodeToString(png),
		NumInferenceSteps: c.params.InferenceSteps,
		OctreeResolution:  c.params.OctreeResolution,
		NumChunks:         c.params.NumChunks,
		Seed:              c.params.Seed,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeShapeGen, "failed to marshal shape request")
	}

	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/v1/shape", body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeShapeGen, "shape generation request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeShapeGen, "failed to read shape response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("shape API error", "status", resp.StatusCode, "body", string(data))
		return nil, errors.New(errors.ErrCodeShapeGen, fmt.Sprintf("shape generation returned %d", resp.StatusCode))
	}

	if !IsGLB(data) {
		return nil, errors.New(errors.ErrCodeShapeGen, "shape service returned a non-GLB payload")
	}

	return &Mesh{Data: data}, nil
}

// Release asks the shape service to drop transient compute buffers after a
// run. Best effort: failures are logged and never surface to the pipeline.
func (c *Client) Release(ctx context.Context) {
	if !c.releaseAfterRun {
		return
	}

	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/v1/release", []byte(`{}`))
	if err != nil {
		c.logger.Warn("shape service release failed", "error", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// IsGLB reports whether data starts with a glTF-binary container header.
func IsGLB(data []byte) bool {
	return len(data) >= 12 &&
		data[0] == 'g' && data[1] == 'l' && data[2] == 'T' && data[3] == 'F'
}
