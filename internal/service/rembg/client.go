package rembg

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/meshkit/img2mesh/internal/infra/httpclient"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/pkg/errors"
)

// Client talks to the background-removal inference server: PNG in, RGBA PNG
// out with the subject isolated on a transparent background.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	logger     *logger.Logger
}

func New(baseURL string, client *httpclient.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     log,
	}
}

func (c *Client) Remove(ctx context.Context, png []byte) ([]byte, error) {
	url := c.baseURL + "/remove"

	resp, err := c.httpClient.PostBinary(ctx, url, "image/png", png)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeImageProcess, "background removal request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeImageProcess, "failed to read background removal response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("rembg API error", "status", resp.StatusCode, "body", string(body))
		return nil, errors.New(errors.ErrCodeImageProcess, fmt.Sprintf("background removal returned %d", resp.StatusCode))
	}

	if len(body) == 0 {
		return nil, errors.New(errors.ErrCodeImageProcess, "background removal returned empty image")
	}

	return body, nil
}
