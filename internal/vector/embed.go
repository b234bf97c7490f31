package vector

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/viterin/vek/vek32"
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// DefaultDimensions is the width of HashEmbedder vectors when none is given.
const DefaultDimensions = 256

// HashEmbedder is an offline embedder using signed feature hashing over word
// tokens and character trigrams. Vectors are L2-normalised.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder producing dims-wide vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Name() string { return fmt.Sprintf("hash-%d", h.dims) }

// Embed never fails; the context is accepted for interface compatibility.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		h.add(vec, tok, 1)
		if n := len([]rune(tok)); n > 3 {
			r := []rune(tok)
			for i := 0; i+3 <= n; i++ {
				h.add(vec, "#"+string(r[i:i+3]), 0.5)
			}
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	hf := fnv.New64a()
	hf.Write([]byte(feature))
	sum := hf.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lower-cases text and splits it on anything that is not a letter or
// digit, then splits snake_case and camelCase identifiers into their words
// while keeping the whole identifier as a token too.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var tokens []string
	for _, f := range fields {
		words := splitIdentifier(f)
		tokens = append(tokens, strings.ToLower(strings.Trim(f, "_")))
		if len(words) > 1 {
			for _, w := range words {
				tokens = append(tokens, strings.ToLower(w))
			}
		}
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitIdentifier(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// normalize scales v to unit length in place. Zero vectors are left alone.
func normalize(v []float32) {
	norm := math.Sqrt(float64(vek32.Dot(v, v)))
	if norm == 0 {
		return
	}
	vek32.MulNumber_Inplace(v, float32(1/norm))
}

// cosine returns the cosine similarity of a and b, or 0 when either is zero.
func cosine(a, b []float32) float64 {
	na := vek32.Dot(a, a)
	nb := vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
}

// ErrMissingAPIKey is returned when the OpenAI embedder has no key.
var ErrMissingAPIKey = errors.New("openai api key not set")

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder for cfg.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{client: &client, model: model, dims: cfg.Dimensions}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) Name() string { return "openai-" + e.model }

// Embed requests the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dims > 0 {
		params.Dimensions = openai.Int(int64(e.dims))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response has no data")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	if e.dims == 0 {
		e.dims = len(vec)
	}
	return vec, nil
}
