package embed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedding models of the OpenAI API. Both accept a reduced dimension.
const (
	ModelOpenAI3Small = "text-embedding-3-small"
	ModelOpenAI3Large = "text-embedding-3-large"
)

const (
	openAIMaxBatch     = 2048
	openAIDefaultDim   = 1536
	openAIDefaultModel = ModelOpenAI3Small
)

// OpenAI embeds text through the OpenAI embeddings endpoint, or any
// compatible one set with WithBaseURL. Vectors are requested at the
// configured dimension and rejected when the endpoint returns another.
type OpenAI struct {
	client   *openai.Client
	model    string
	dim      int
	maxBatch int
}

var _ Embedder = (*OpenAI)(nil)

func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:      openAIDefaultModel,
		dim:        openAIDefaultDim,
		maxBatch:   openAIMaxBatch,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBatch <= 0 || cfg.maxBatch > openAIMaxBatch {
		cfg.maxBatch = openAIMaxBatch
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &OpenAI{client: &client, model: cfg.model, dim: cfg.dim, maxBatch: cfg.maxBatch}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order, one request per maxBatch texts.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for n, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("embed: openai: text %d: %w", n, ErrEmptyInput)
		}
	}
	out := make([][]float32, len(texts))
	for from := 0; from < len(texts); from += o.maxBatch {
		to := min(from+o.maxBatch, len(texts))
		vecs, err := o.request(ctx, texts[from:to])
		if err != nil {
			return nil, fmt.Errorf("embed: openai: texts %d-%d: %w", from, to-1, err)
		}
		copy(out[from:], vecs)
	}
	return out, nil
}

func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		n := item.Index
		if n < 0 || n >= int64(len(texts)) {
			return nil, fmt.Errorf("response index %d outside batch of %d", n, len(texts))
		}
		if len(item.Embedding) != o.dim {
			return nil, fmt.Errorf("text %d: got %d values, want %d", n, len(item.Embedding), o.dim)
		}
		v := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			v[i] = float32(x)
		}
		vecs[n] = v
	}
	for n, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for text %d", n)
		}
	}
	return vecs, nil
}
