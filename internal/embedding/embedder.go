package embedding

import "context"

// Modality selects which encoder of a multimodal model handles the content.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
)

// Embedder maps raw content to a fixed-dimension float vector. The dimension
// is fixed at deployment time; all entries in a vector index must come from
// the same embedder.
type Embedder interface {
	// EmbedImage computes an embedding for raw image bytes.
	EmbedImage(ctx context.Context, content []byte) ([]float32, error)

	// EmbedText computes an embedding for a text string in the same vector
	// space as EmbedImage.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension D.
	Dimensions() int
}
