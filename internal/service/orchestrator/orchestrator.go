package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/meshkit/img2mesh/internal/infra/limiter"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/infra/metrics"
	"github.com/meshkit/img2mesh/internal/service/imageproc"
	"github.com/meshkit/img2mesh/internal/service/shapegen"
	"github.com/meshkit/img2mesh/internal/service/texgen"
	"github.com/meshkit/img2mesh/pkg/errors"
	"github.com/meshkit/img2mesh/pkg/util"
)

// GenerationType discriminates the two input paths. It is fixed the moment
// the input is resolved and never changes afterward.
const (
	TypeImageTo3D = "image-to-3d"
	TypeTextTo3D  = "text-to-3d"
)

// GenerateRequest is the typed input after envelope validation. Exactly one
// of ImageBytes or Prompt is populated.
type GenerateRequest struct {
	RequestID  string
	ImageBytes []byte
	Prompt     string
	Seed       int64
}

// ProgressEvent is one checkpoint in the pipeline's progress trace. The
// percentages are informational checkpoints, not commitments.
type ProgressEvent struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// ProgressCallback receives events as they are appended to the trace.
type ProgressCallback func(event ProgressEvent)

// Result is the success payload of one pipeline run.
type Result struct {
	Filename       string
	FileData       string // base64-encoded model file
	FileSize       int    // decoded byte length of the model file
	GenerationTime float64
	GenerationType string
	ShapeOnly      bool
	Progress       []ProgressEvent
}

// Stage boundaries, defined consumer-side so tests can substitute fakes.

type ImageNormalizer interface {
	Normalize(ctx context.Context, data []byte) (*imageproc.CanonicalImage, error)
}

type PromptRenderer interface {
	Render(ctx context.Context, prompt string, seed int64) (*imageproc.CanonicalImage, error)
}

type ShapeSynthesizer interface {
	Synthesize(ctx context.Context, img *imageproc.CanonicalImage) (*shapegen.Mesh, error)
	Release(ctx context.Context)
}

// TextureSynthesizer never reports failure; degradation is encoded in the
// returned TexturedMesh.
type TextureSynthesizer interface {
	Texture(ctx context.Context, mesh *shapegen.Mesh, img *imageproc.CanonicalImage) *texgen.TexturedMesh
}

type ModelExporter interface {
	Export(mesh *texgen.TexturedMesh, filename string) (string, error)
}

type Orchestrator struct {
	normalizer ImageNormalizer
	renderer   PromptRenderer // nil when the deployment has no text-to-image capability
	shape      ShapeSynthesizer
	texture    TextureSynthesizer
	exporter   ModelExporter
	limiter    *limiter.Limiter
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func New(
	normalizer ImageNormalizer,
	renderer PromptRenderer,
	shape ShapeSynthesizer,
	texture TextureSynthesizer,
	exporter ModelExporter,
	lim *limiter.Limiter,
	m *metrics.Metrics,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		normalizer: normalizer,
		renderer:   renderer,
		shape:      shape,
		texture:    texture,
		exporter:   exporter,
		limiter:    lim,
		metrics:    m,
		logger:     log,
	}
}

// Generate runs the full pipeline for one request: input resolution, shape
// synthesis, texture synthesis, export, and payload assembly. The first stage
// failure short-circuits everything after it; only texturing is exempt.
func (o *Orchestrator) Generate(ctx context.Context, req *GenerateRequest, onProgress ProgressCallback) (*Result, error) {
	generationType := TypeImageTo3D
	if req.Prompt != "" {
		generationType = TypeTextTo3D
	}

	release, err := o.limiter.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRateLimited, "rate limit exceeded")
	}
	defer release()

	start := time.Now()

	trace := make([]ProgressEvent, 0, 8)
	emit := func(message string, percent int) {
		event := ProgressEvent{Message: message, Percent: percent}
		trace = append(trace, event)
		if onProgress != nil {
			onProgress(event)
		}
	}

	fail := func(stage string, err error) (*Result, error) {
		o.logger.Error("generation failed",
			"request_id", req.RequestID,
			"stage", stage,
			"error", err,
		)
		o.metrics.ObserveFailure(generationType)
		return nil, err
	}

	o.logger.Info("starting generation",
		"request_id", req.RequestID,
		"generation_type", generationType,
	)

	// Step 1: resolve the canonical image from whichever input was supplied.
	var img *imageproc.CanonicalImage
	if generationType == TypeTextTo3D {
		emit("Rendering prompt image", 5)
		if o.renderer == nil {
			return fail("prompt-render", errors.New(errors.ErrCodePromptRender,
				"text-to-image capability is not configured on this deployment"))
		}
		img, err = o.renderer.Render(ctx, req.Prompt, req.Seed)
		if err != nil {
			return fail("prompt-render", err)
		}
	} else {
		emit("Processing input image", 5)
		img, err = o.normalizer.Normalize(ctx, req.ImageBytes)
		if err != nil {
			return fail("image-normalize", err)
		}
	}

	o.logger.Info("input resolved",
		"request_id", req.RequestID,
		"source", img.Source,
		"width", img.Image.Bounds().Dx(),
		"height", img.Image.Bounds().Dy(),
	)

	// Step 2: shape synthesis. Mandatory, no degradation path.
	emit("Generating 3D shape", 10)

	mesh, err := o.shape.Synthesize(ctx, img)
	if err != nil {
		return fail("shape-generate", err)
	}
	o.shape.Release(ctx)

	emit("3D shape generated", 50)
	o.logger.Info("shape generated", "request_id", req.RequestID, "mesh_bytes", len(mesh.Data))

	// Step 3: texture synthesis. Never fails; degrades to shape-only.
	emit("Generating texture", 60)

	textured := o.texture.Texture(ctx, mesh, img)
	if textured.ShapeOnly {
		emit(fmt.Sprintf("Using shape-only model (%s)", textured.Reason), 90)
		o.logger.Warn("texture degraded to shape-only",
			"request_id", req.RequestID,
			"reason", textured.Reason,
		)
	} else {
		emit("Texture generated", 90)
		o.logger.Info("texture generated", "request_id", req.RequestID)
	}

	// Step 4: export with the size ceiling enforced.
	filename := fmt.Sprintf("model_%s_%s_%s.glb",
		generationType, start.Format("20060102_150405"), util.RandomString(6))

	path, err := o.exporter.Export(textured, filename)
	if err != nil {
		return fail("export", err)
	}
	// The export area is scoped to this request; remove the file on every
	// path out of here.
	defer os.Remove(path)

	emit("Model saved", 100)

	// Step 5: read back and encode the payload.
	data, err := os.ReadFile(path)
	if err != nil {
		return fail("encode", errors.Wrap(err, errors.ErrCodeExport, "failed to read exported model"))
	}

	elapsed := time.Since(start).Seconds()
	o.metrics.ObserveSuccess(generationType, elapsed, textured.ShapeOnly)

	o.logger.Info("generation completed",
		"request_id", req.RequestID,
		"generation_type", generationType,
		"file_size", len(data),
		"shape_only", textured.ShapeOnly,
		"elapsed_seconds", elapsed,
	)

	return &Result{
		Filename:       filename,
		FileData:       base64.StdEncoding.EncodeToString(data),
		FileSize:       len(data),
		GenerationTime: elapsed,
		GenerationType: generationType,
		ShapeOnly:      textured.ShapeOnly,
		Progress:       trace,
	}, nil
}
