package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/service/orchestrator"
	"github.com/meshkit/img2mesh/pkg/errors"
)

type fakeGenerator struct {
	result  *orchestrator.Result
	err     error
	lastReq *orchestrator.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req *orchestrator.GenerateRequest, onProgress orchestrator.ProgressCallback) (*orchestrator.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if onProgress != nil {
		for _, event := range f.result.Progress {
			onProgress(event)
		}
	}
	return f.result, nil
}

func successResult() *orchestrator.Result {
	return &orchestrator.Result{
		Filename:       "model_image-to-3d_20250101_000000_abc123.glb",
		FileData:       base64.StdEncoding.EncodeToString([]byte("glTFmesh")),
		FileSize:       8,
		GenerationTime: 12.5,
		GenerationType: orchestrator.TypeImageTo3D,
		Progress: []orchestrator.ProgressEvent{
			{Message: "Processing input image", Percent: 5},
			{Message: "Generating 3D shape", Percent: 10},
			{Message: "3D shape generated", Percent: 50},
			{Message: "Texture generated", Percent: 90},
			{Message: "Model saved", Percent: 100},
		},
	}
}

func newTestRouter(gen Generator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(gen, logger.NewNop())
	r.POST("/v1/generate", handler.Generate)
	r.GET("/health", handler.Health)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validImageEnvelope() string {
	payload := base64.StdEncoding.EncodeToString([]byte("pretend png"))
	return `{"input": {"image": "` + payload + `"}}`
}

func TestGenerateSuccess(t *testing.T) {
	gen := &fakeGenerator{result: successResult()}
	r := newTestRouter(gen)

	w := postJSON(t, r, validImageEnvelope())
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "image-to-3d", resp.GenerationType)
	assert.NotEmpty(t, resp.FileData)

	// Round-trip: decoded payload length equals file_size.
	decoded, err := base64.StdEncoding.DecodeString(resp.FileData)
	require.NoError(t, err)
	assert.Equal(t, resp.FileSize, len(decoded))

	// Progress trace: >= 4 checkpoints ending at 100.
	require.GreaterOrEqual(t, len(resp.Progress), 4)
	assert.Equal(t, 100, resp.Progress[len(resp.Progress)-1].Percent)

	// The adapter decoded the base64 image before handing it to the pipeline.
	require.NotNil(t, gen.lastReq)
	assert.Equal(t, []byte("pretend png"), gen.lastReq.ImageBytes)
	assert.NotEmpty(t, gen.lastReq.RequestID)
}

func TestGenerateEmptyEnvelope(t *testing.T) {
	gen := &fakeGenerator{result: successResult()}
	r := newTestRouter(gen)

	w := postJSON(t, r, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "No input data provided", resp["error"])
	_, hasProgress := resp["progress"]
	assert.False(t, hasProgress, "failure responses carry no progress trace")
	assert.Nil(t, gen.lastReq, "no stage runs on validation failure")
}

func TestGenerateNeitherField(t *testing.T) {
	r := newTestRouter(&fakeGenerator{result: successResult()})

	w := postJSON(t, r, `{"input": {}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "'image'")
	assert.Contains(t, resp.Error, "'prompt'")
}

func TestGenerateBothFieldsRejected(t *testing.T) {
	gen := &fakeGenerator{result: successResult()}
	r := newTestRouter(gen)

	payload := base64.StdEncoding.EncodeToString([]byte("png"))
	w := postJSON(t, r, `{"input": {"image": "`+payload+`", "prompt": "a dragon"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, gen.lastReq)
}

func TestGenerateInvalidBase64Image(t *testing.T) {
	r := newTestRouter(&fakeGenerator{result: successResult()})

	w := postJSON(t, r, `{"input": {"image": "%%% not base64 %%%"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "base64")
}

func TestGenerateDataURLPrefixAccepted(t *testing.T) {
	gen := &fakeGenerator{result: successResult()}
	r := newTestRouter(gen)

	payload := base64.StdEncoding.EncodeToString([]byte("png bytes"))
	w := postJSON(t, r, `{"input": {"image": "data:image/png;base64,`+payload+`"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("png bytes"), gen.lastReq.ImageBytes)
}

func TestGeneratePromptRequest(t *testing.T) {
	result := successResult()
	result.GenerationType = orchestrator.TypeTextTo3D
	gen := &fakeGenerator{result: result}
	r := newTestRouter(gen)

	w := postJSON(t, r, `{"input": {"prompt": "a dragon", "seed": 7}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "a dragon", gen.lastReq.Prompt)
	assert.Equal(t, int64(7), gen.lastReq.Seed)
	assert.Empty(t, gen.lastReq.ImageBytes)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "text-to-3d", resp.GenerationType)
}

func TestGenerateMissingCapabilityError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New(errors.ErrCodePromptRender,
		"text-to-image capability is not configured on this deployment")}
	r := newTestRouter(gen)

	w := postJSON(t, r, `{"input": {"prompt": "a dragon"}}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "text-to-image capability")
}

func TestGeneratePipelineFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New(errors.ErrCodeShapeGen, "shape generation returned 500")}
	r := newTestRouter(gen)

	w := postJSON(t, r, validImageEnvelope())
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "shape generation")
	_, hasProgress := resp["progress"]
	assert.False(t, hasProgress)
}

func TestGenerateRateLimited(t *testing.T) {
	gen := &fakeGenerator{err: errors.New(errors.ErrCodeRateLimited, "rate limit exceeded")}
	r := newTestRouter(gen)

	w := postJSON(t, r, validImageEnvelope())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGenerateStreaming(t *testing.T) {
	gen := &fakeGenerator{result: successResult()}
	r := newTestRouter(gen)

	payload := base64.StdEncoding.EncodeToString([]byte("png"))
	w := postJSON(t, r, `{"input": {"image": "`+payload+`"}, "stream": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "Processing input image")

	// The stream ends with the complete event carrying the full payload.
	idx := strings.LastIndex(body, "event: complete")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, body[idx:], "file_data")
}

func TestGenerateStreamingError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New(errors.ErrCodeShapeGen, "shape generation returned 500")}
	r := newTestRouter(gen)

	payload := base64.StdEncoding.EncodeToString([]byte("png"))
	w := postJSON(t, r, `{"input": {"image": "`+payload+`"}, "stream": true}`)

	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: complete")
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
