package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/roll-call/internal/facematch"
)

const defaultServiceURL = "http://localhost:8000"

// Client computes face detections and embeddings using the face service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new face service client. Per-request deadlines come
// from the caller's context, so the underlying http.Client carries none.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// detectResponse represents the response from the detection endpoint.
type detectResponse struct {
	FacesCount int                      `json:"faces_count"`
	Boxes      []facematch.DetectionBox `json:"boxes"`
}

// encodeResponse represents the response from the encoding endpoint.
type encodeResponse struct {
	Dim        int         `json:"dim"`
	Embeddings [][]float32 `json:"embeddings"`
}

// postMultipartImage constructs a multipart form with the image data plus any
// extra fields and posts it to the given endpoint. The image part carries an
// explicit Content-Type header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces locates faces in the image using the face service.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]facematch.DetectionBox, error) {
	body, err := c.postMultipartImage(ctx, "/detect", imageData, nil)
	if err != nil {
		return nil, err
	}

	var detResp detectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return detResp.Boxes, nil
}

// EncodeFaces computes one embedding per detection box. The service returns
// embeddings in box order; a count mismatch means the service contract is
// broken and is reported as an error.
func (c *Client) EncodeFaces(ctx context.Context, imageData []byte, boxes []facematch.DetectionBox) ([][]float32, error) {
	boxesJSON, err := json.Marshal(boxes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal boxes: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/encode", imageData, map[string]string{
		"boxes": string(boxesJSON),
	})
	if err != nil {
		return nil, err
	}

	var encResp encodeResponse
	if err := json.Unmarshal(body, &encResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(encResp.Embeddings) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	if len(encResp.Embeddings) != len(boxes) {
		return nil, fmt.Errorf("got %d embeddings for %d boxes", len(encResp.Embeddings), len(boxes))
	}

	return encResp.Embeddings, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
