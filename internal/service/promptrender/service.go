package promptrender

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/meshkit/img2mesh/internal/infra/httpclient"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/service/imageproc"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// DefaultSeed is used when the request does not carry one, so identical
// prompts render identical images across runs.
const DefaultSeed int64 = 12345

type Service struct {
	apiKey       string
	model        string
	maxDimension int
	httpClient   *httpclient.Client
	logger       *logger.Logger
}

func New(apiKey, model string, maxDimension int, client *httpclient.Client, log *logger.Logger) *Service {
	return &Service{
		apiKey:       apiKey,
		model:        model,
		maxDimension: maxDimension,
		httpClient:   client,
		logger:       log,
	}
}

// Render turns a text prompt into a canonical image via the text-to-image
// service. The rendered image is used directly as the shape-stage input: the
// prompt below asks for a clean subject on white, so it does not pass through
// background removal or enhancement. No retry beyond the transport layer.
func (s *Service) Render(ctx context.Context, prompt string, seed int64) (*imageproc.CanonicalImage, error) {
	if seed == 0 {
		seed = DefaultSeed
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{
						"text": s.buildImagePrompt(prompt),
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"TEXT", "IMAGE"},
			"seed":               seed,
		},
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request")
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		s.model, s.apiKey)

	resp, err := s.httpClient.PostJSON(ctx, url, bodyBytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePromptRender, "text-to-image request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePromptRender, "failed to read text-to-image response")
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("text-to-image API error", "status", resp.StatusCode, "body", string(respBody))
		return nil, errors.New(errors.ErrCodePromptRender, fmt.Sprintf("text-to-image API returned %d", resp.StatusCode))
	}

	imageBytes, err := s.parseResponse(respBody)
	if err != nil {
		return nil, err
	}

	decoded, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePromptRender, "text-to-image returned an undecodable image")
	}

	img := imageproc.Bound(imaging.Clone(decoded), s.maxDimension)
	return &imageproc.CanonicalImage{Image: img, Source: imageproc.SourcePrompt}, nil
}

func (s *Service) buildImagePrompt(prompt string) string {
	return fmt.Sprintf(`Generate a single object render suitable for 3D reconstruction.

Requirements:
- One centered subject on a plain white background
- Neutral, even studio lighting, no shadows touching the frame edges
- Full subject visible, three-quarter view
- No text, letters, watermarks, or logos

Subject: %s`, prompt)
}

func (s *Service) parseResponse(body []byte) ([]byte, error) {
	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       string `json:"text,omitempty"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData,omitempty"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePromptRender, "failed to parse text-to-image response")
	}

	if len(response.Candidates) == 0 {
		return nil, errors.New(errors.ErrCodePromptRender, "empty response from text-to-image")
	}

	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageBytes, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodePromptRender, "failed to decode rendered image data")
			}
			return imageBytes, nil
		}
	}

	return nil, errors.New(errors.ErrCodePromptRender, "no image in text-to-image response")
}
