package embedding

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/marek/imagesim/internal/domain"
)

// JinaEmbedder generates embeddings via a Jina CLIP-style API, which accepts
// text strings and base64 images in the same vector space.
type JinaEmbedder struct {
	client     *resty.Client
	model      string
	dimensions int
	endpoint   string
}

// JinaConfig holds configuration for the embedding client.
type JinaConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewJinaEmbedder creates a new embedding client. The remote model is loaded
// lazily by the provider; call Warmup during startup to pay the cold-start
// cost before serving traffic.
func NewJinaEmbedder(cfg *JinaConfig) *JinaEmbedder {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.jina.ai/v1"
	}

	return &JinaEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		endpoint:   baseURL + "/embeddings",
	}
}

// Dimensions returns the embedding dimension D.
func (e *JinaEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used.
func (e *JinaEmbedder) Model() string {
	return e.model
}

// clipInput is one element of the multimodal input array; exactly one of
// Text or Image is set.
type clipInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // base64-encoded bytes
}

type clipRequest struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
	Input      []clipInput `json:"input"`
}

type clipResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// EmbedImage computes an embedding for raw image bytes.
func (e *JinaEmbedder) EmbedImage(ctx context.Context, content []byte) ([]float32, error) {
	return e.embed(ctx, clipInput{Image: base64.StdEncoding.EncodeToString(content)})
}

// EmbedText computes an embedding for a text string.
func (e *JinaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, clipInput{Text: text})
}

func (e *JinaEmbedder) embed(ctx context.Context, input clipInput) ([]float32, error) {
	req := clipRequest{
		Model:      e.model,
		Dimensions: e.dimensions,
		Input:      []clipInput{input},
	}

	var resp clipResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(e.endpoint)

	if err != nil {
		return nil, fmt.Errorf("%w: call embedding API: %v", domain.ErrEmbedding, err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("%w: embedding API: %s", domain.ErrEmbedding, resp.Detail)
		}
		return nil, fmt.Errorf("%w: embedding API: status %d", domain.ErrEmbedding, httpResp.StatusCode())
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
	}

	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: got dimension %d, expected %d", domain.ErrEmbedding, len(vec), e.dimensions)
	}

	return vec, nil
}

// Warmup issues a tiny text embedding to force the provider to load the
// model, so the first real request does not absorb the cold start.
func (e *JinaEmbedder) Warmup(ctx context.Context) error {
	_, err := e.EmbedText(ctx, "warmup")
	return err
}
