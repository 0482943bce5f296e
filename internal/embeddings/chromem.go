package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts e to chromem-go, which embeds one text per call. A
// missing vector or one of the wrong width is an error.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("%s returned %d embeddings for one text", e.Name(), len(vecs))
		}
		if want := e.Dimensions(); want > 0 && len(vecs[0]) != want {
			return nil, fmt.Errorf("%s returned %d dimensions, want %d", e.Name(), len(vecs[0]), want)
		}
		return vecs[0], nil
	}
}
