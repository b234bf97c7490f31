package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/symdex/internal/symbols"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "vectors.db"), "", NewHashEmbedder(128))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) Dimensions() int { return 8 }
func (failingEmbedder) Name() string    { return "failing" }

func TestHashEmbedderIsDeterministicAndNormalised(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "load the configuration file")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "load the configuration file")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)

	var norm float64
	for _, f := range a {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Zero(t, cosine(empty, a))
}

func TestTokenizeSplitsIdentifiers(t *testing.T) {
	assert.Equal(t,
		[]string{"load_config", "load", "config", "httpclient", "http", "client"},
		tokenize("load_config(HttpClient)"))
	assert.Equal(t, []string{"x"}, tokenize("__x__"))
}

func TestStoreInsertQueryAndCount(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, "parse_config", "Symbol: parse_config\nPurpose: parse the yaml configuration file")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	ids, err := st.BatchInsert(ctx, []Document{
		{Symbol: "HttpClient", Document: "Class doc: http client sending network requests"},
		{Symbol: "render_page", Source: "/src/ui.py", Document: "Purpose: render the html page template"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := st.Query(ctx, "yaml configuration", 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "parse_config", matches[0].Symbol)
	assert.Equal(t, id, matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.LessOrEqual(t, matches[0].Score, 1.0+1e-9)

	filtered, err := st.Query(ctx, "yaml configuration", 5, &Filter{Source: "/src/ui.py"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "render_page", filtered[0].Symbol)
}

func TestStoreUpdateDeleteAndClear(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, "old", "old description text")
	require.NoError(t, err)

	require.NoError(t, st.Update(ctx, id, "new", "new description text"))
	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", doc.Symbol)
	assert.Equal(t, "new description text", doc.Document)

	require.NoError(t, st.Delete(ctx, id))
	_, err = st.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, id), ErrNotFound)
	assert.ErrorIs(t, st.Update(ctx, id, "x", "y"), ErrNotFound)

	_, err = st.BatchInsert(ctx, []Document{
		{Symbol: "a", Source: "a.py", Document: "alpha"},
		{Symbol: "b", Source: "a.py", Document: "beta"},
		{Symbol: "c", Source: "c.py", Document: "gamma"},
	})
	require.NoError(t, err)

	n, err := st.CountSource(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := st.DeleteSource(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	n, err = st.CountSource(ctx, "a.py")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, st.Clear(ctx))
	n, err = st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQuerySkipsMismatchedDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	wide, err := Open(path, "", NewHashEmbedder(64))
	require.NoError(t, err)
	_, err = wide.Insert(ctx, "wide", "wide vector document")
	require.NoError(t, err)
	require.NoError(t, wide.Close())

	narrow, err := Open(path, "", NewHashEmbedder(32))
	require.NoError(t, err)
	defer narrow.Close()
	_, err = narrow.Insert(ctx, "narrow", "narrow vector document")
	require.NoError(t, err)

	matches, err := narrow.Query(ctx, "vector document", 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "narrow", matches[0].Symbol)
}

func TestStoreEmbedFailure(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "vectors.db"), "", failingEmbedder{})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Insert(context.Background(), "x", "text")
	assert.Error(t, err)
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDescribe(t *testing.T) {
	ret := "dict"
	fn := &symbols.Symbol{
		Kind: symbols.KindFunction,
		Doc:  "Load settings from disk.",
		Signature: &symbols.Signature{
			Args:    []symbols.Param{{Name: "path", Type: "str", Kind: symbols.ParamPositional}},
			Returns: &ret,
		},
	}
	desc, ok := Describe("load", fn, 0)
	require.True(t, ok)
	assert.Equal(t, "Symbol: load\nKind: function\nSignature: load(path: str) -> dict\nPurpose: Load settings from disk.", desc)

	members := symbols.NewMembers()
	members.Set("run", &symbols.Symbol{Kind: symbols.KindMethod, Doc: "Run it. Twice."})
	members.Set("size", &symbols.Symbol{Kind: symbols.KindAttribute})
	cls := &symbols.Symbol{Kind: symbols.KindClass, Doc: "A worker.", Bases: []string{"Base", "Generic[T]"}, Members: members}
	desc, ok = Describe("Worker", cls, 0)
	require.True(t, ok)
	assert.Contains(t, desc, "Bases: Base, Generic[T]")
	assert.Contains(t, desc, "Members: run(method): Run it., size(attribute)")

	attr := &symbols.Symbol{Kind: symbols.KindAttribute, Doc: "the limit", Annotation: "int", FromClass: "Worker"}
	desc, ok = Describe("Worker.limit", attr, 0)
	require.True(t, ok)
	assert.Contains(t, desc, "Defined in: Worker")
	assert.Contains(t, desc, "Annotation: int")

	_, ok = Describe("short", &symbols.Symbol{Kind: symbols.KindFunction, Doc: "abc"}, 0)
	assert.False(t, ok)
	_, ok = Describe("none", &symbols.Symbol{Kind: symbols.KindVariable}, 0)
	assert.False(t, ok)
	_, ok = Describe("nil", nil, 0)
	assert.False(t, ok)
}

func TestPublisherPublishTable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := NewPublisher(st, MinDocLength, nil)

	table := symbols.Table{
		{Name: symbols.ModuleDocName, Symbol: &symbols.Symbol{Kind: symbols.KindModuleDoc, Doc: "Module docs."}},
		{Name: "os", Symbol: &symbols.Symbol{Kind: symbols.KindImport, IsImport: true}},
		{Name: "documented", Symbol: &symbols.Symbol{Kind: symbols.KindFunction, Doc: "Does a thing."}},
		{Name: "bare", Symbol: &symbols.Symbol{Kind: symbols.KindFunction}},
	}
	results, summary := p.PublishTable(ctx, "/src/m.py", table)
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, "documented", results[0].Symbol)
	assert.NotEmpty(t, results[0].ID)
	assert.Equal(t, StatusFail, results[1].Status)
	assert.Equal(t, Summary{Published: 1, Skipped: 1}, summary)

	// Republishing replaces the previous documents of the source.
	_, summary = p.PublishTable(ctx, "/src/m.py", table)
	assert.Equal(t, 1, summary.Published)
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res := p.Publish(ctx, "tiny", &symbols.Symbol{Kind: symbols.KindVariable, Doc: "x"})
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, symbols.KindVariable, res.Kind)
}

func TestPublisherReportsEmbedErrors(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "vectors.db"), "", failingEmbedder{})
	require.NoError(t, err)
	defer st.Close()

	p := NewPublisher(st, 0, nil)
	res := p.Publish(context.Background(), "f", &symbols.Symbol{Kind: symbols.KindFunction, Doc: "Documented."})
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, strings.Contains(res.Error, "boom"))

	_, summary := p.PublishTable(context.Background(), "s.py", symbols.Table{
		{Name: "f", Symbol: &symbols.Symbol{Kind: symbols.KindFunction, Doc: "Documented."}},
	})
	assert.Equal(t, Summary{Failed: 1}, summary)
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai-"+DefaultOpenAIModel, e.Name())
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{1.5, -2, 0, float32(math.Pi)}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPublisherRetract(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	p := NewPublisher(st, 0, nil)

	_, summary := p.PublishTable(ctx, "a.py", symbols.Table{
		{Name: "f", Symbol: &symbols.Symbol{Kind: symbols.KindFunction, Doc: "Documented."}},
		{Name: "g", Symbol: &symbols.Symbol{Kind: symbols.KindFunction, Doc: "Also documented."}},
	})
	require.Equal(t, 2, summary.Published)
	has, err := p.HasSource(ctx, "a.py")
	require.NoError(t, err)
	assert.True(t, has)

	n, err := p.Retract(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	has, err = p.HasSource(ctx, "a.py")
	require.NoError(t, err)
	assert.False(t, has)
	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
