package promptrender

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/pkg/errors"
)

func newService() *Service {
	return New("test-key", "test-model", 2048, nil, logger.NewNop())
}

func inlineImageResponse(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(8, 8, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	payload := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{
						{"text": "here is your render"},
						{"inlineData": map[string]string{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(buf.Bytes()),
						}},
					},
				},
			},
		},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestParseResponseExtractsImage(t *testing.T) {
	svc := newService()

	imageBytes, err := svc.parseResponse(inlineImageResponse(t))
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(imageBytes))
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}

func TestParseResponseEmptyCandidates(t *testing.T) {
	svc := newService()

	_, err := svc.parseResponse([]byte(`{"candidates": []}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePromptRender))
}

func TestParseResponseTextOnly(t *testing.T) {
	svc := newService()

	body := []byte(`{"candidates":[{"content":{"parts":[{"text":"sorry, no image"}]}}]}`)
	_, err := svc.parseResponse(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image")
}

func TestParseResponseMalformedJSON(t *testing.T) {
	svc := newService()

	_, err := svc.parseResponse([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePromptRender))
}

func TestBuildImagePromptConstraints(t *testing.T) {
	svc := newService()

	prompt := svc.buildImagePrompt("a dragon")
	assert.Contains(t, prompt, "a dragon")
	assert.Contains(t, prompt, "white background")
	assert.Contains(t, prompt, "No text")
}
