package vector

import (
	"context"
	"log/slog"

	"github.com/abramin/symdex/internal/symbols"
)

// Status is the outcome of publishing one symbol.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusFail marks a symbol skipped because it has no usable doc.
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// PublishResult reports what happened to one symbol.
type PublishResult struct {
	Status Status       `json:"status"`
	Symbol string       `json:"symbol"`
	Kind   symbols.Kind `json:"type"`
	ID     string       `json:"id,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Summary counts publish outcomes.
type Summary struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add tallies r into the summary.
func (s *Summary) Add(r PublishResult) {
	switch r.Status {
	case StatusSuccess:
		s.Published++
	case StatusFail:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Publisher writes symbol descriptions to a Store.
type Publisher struct {
	store  *Store
	minDoc int
	logger *slog.Logger
}

// NewPublisher returns a Publisher writing to store. Symbols with docs shorter
// than minDoc characters are skipped.
func NewPublisher(store *Store, minDoc int, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{store: store, minDoc: minDoc, logger: logger}
}

// Publish stores the description of a single symbol.
func (p *Publisher) Publish(ctx context.Context, name string, sym *symbols.Symbol) PublishResult {
	res := PublishResult{Symbol: name}
	if sym != nil {
		res.Kind = sym.Kind
	}
	desc, ok := Describe(name, sym, p.minDoc)
	if !ok {
		res.Status = StatusFail
		return res
	}
	id, err := p.store.Insert(ctx, name, desc)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	res.Status = StatusSuccess
	res.ID = id
	return res
}

// PublishTable replaces the documents previously published from source with
// the descriptions of table. Module docstrings and imports are not published.
func (p *Publisher) PublishTable(ctx context.Context, source string, table symbols.Table) ([]PublishResult, Summary) {
	var (
		results []PublishResult
		summary Summary
		docs    []Document
		pending []int
	)
	if _, err := p.store.DeleteSource(ctx, source); err != nil {
		p.logger.Warn("clearing previous descriptions failed", "source", source, "error", err)
	}

	for _, e := range table {
		if e.Symbol == nil || e.Symbol.Kind == symbols.KindModuleDoc || e.Symbol.IsImport {
			continue
		}
		res := PublishResult{Symbol: e.Name, Kind: e.Symbol.Kind}
		desc, ok := Describe(e.Name, e.Symbol, p.minDoc)
		if !ok {
			res.Status = StatusFail
		} else {
			docs = append(docs, Document{Symbol: e.Name, Source: source, Document: desc})
			pending = append(pending, len(results))
		}
		results = append(results, res)
	}

	if len(docs) > 0 {
		ids, err := p.store.BatchInsert(ctx, docs)
		for i, idx := range pending {
			if err != nil {
				results[idx].Status = StatusError
				results[idx].Error = err.Error()
				continue
			}
			results[idx].Status = StatusSuccess
			results[idx].ID = ids[i]
		}
		if err != nil {
			p.logger.Warn("publishing descriptions failed", "source", source, "error", err)
		}
	}

	for _, r := range results {
		summary.Add(r)
	}
	p.logger.Debug("published descriptions", "source", source,
		"published", summary.Published, "skipped", summary.Skipped, "failed", summary.Failed)
	return results, summary
}

// Retract removes every description published from source.
func (p *Publisher) Retract(ctx context.Context, source string) (int, error) {
	return p.store.DeleteSource(ctx, source)
}

// HasSource reports whether any description from source is stored.
func (p *Publisher) HasSource(ctx context.Context, source string) (bool, error) {
	n, err := p.store.CountSource(ctx, source)
	return n > 0, err
}
