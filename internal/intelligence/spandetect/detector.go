// Package spandetect turns clinical free text into an ordered list of
// non-overlapping annotated spans.
//
// A request runs the glossary pass, learns parenthetical acronym
// definitions into the document's acronym memory, resolves and injects
// acronym mentions, resolves overlaps, and finally merges spans from an
// optional external recognizer with a second overlap pass.
package spandetect

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/internal/intelligence/ner"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// DefaultBatchConcurrency bounds DetectBatch when no option is given.
const DefaultBatchConcurrency = 4

// Degradation components reported to Metrics.
const (
	ComponentAcronymStore = "acronym_store"
	ComponentNER          = "ner"
)

// SnapshotSource yields the glossary snapshot for one request.
// *glossary.Index satisfies it.
type SnapshotSource interface {
	Snapshot() *glossary.Snapshot
}

// SnapshotSourceFunc adapts a function to SnapshotSource.
type SnapshotSourceFunc func() *glossary.Snapshot

// Snapshot calls f.
func (f SnapshotSourceFunc) Snapshot() *glossary.Snapshot { return f() }

// Static serves one fixed snapshot.
func Static(s *glossary.Snapshot) SnapshotSource {
	return SnapshotSourceFunc(func() *glossary.Snapshot { return s })
}

// Metrics receives detection observations.
type Metrics interface {
	ObserveDetect(d time.Duration, spans []clinical.Span)
	ObserveDetectFailure()
	AddAcronymsLearned(n int)
	IncDegraded(component string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDetect(time.Duration, []clinical.Span) {}
func (noopMetrics) ObserveDetectFailure()                        {}
func (noopMetrics) AddAcronymsLearned(int)                       {}
func (noopMetrics) IncDegraded(string)                           {}

// Document is one unit of DetectBatch input.
type Document struct {
	ID   string `json:"doc_id,omitempty"`
	Text string `json:"text"`
}

// Result is the DetectBatch output for one Document.
type Result struct {
	DocID string          `json:"doc_id,omitempty"`
	Spans []clinical.Span `json:"spans"`
}

// Detector is the span collector.  It is safe for concurrent use.
type Detector struct {
	glossary    SnapshotSource
	negation    acronym.NegationScorer
	memory      *acronym.Memory
	ner         ner.Source
	logger      logging.Logger
	metrics     Metrics
	concurrency int
}

// Option configures a Detector.
type Option func(*Detector)

// WithMemory sets the acronym memory.  The default is an in-process memory
// that lives as long as the Detector.
func WithMemory(m *acronym.Memory) Option {
	return func(d *Detector) {
		if m != nil {
			d.memory = m
		}
	}
}

// WithNER enables an external entity source.
func WithNER(s ner.Source) Option {
	return func(d *Detector) { d.ner = s }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Detector) { d.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Detector) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithBatchConcurrency bounds the number of documents DetectBatch runs at
// once.  Values below 1 are ignored.
func WithBatchConcurrency(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDetector builds a Detector over the given glossary source and
// negation scorer.
func NewDetector(g SnapshotSource, neg acronym.NegationScorer, opts ...Option) (*Detector, error) {
	if g == nil {
		return nil, errors.InvalidParam("glossary source is required")
	}
	if neg == nil {
		return nil, errors.InvalidParam("negation scorer is required")
	}
	d := &Detector{
		glossary:    g,
		negation:    neg,
		memory:      acronym.NewMemory(nil),
		logger:      logging.NewNopLogger(),
		metrics:     noopMetrics{},
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect annotates text.  docID scopes acronym learning; an empty docID
// makes the request stateless.  Empty or malformed text yields an empty
// list.  The only error is a context that is already done.
func (d *Detector) Detect(ctx context.Context, text, docID string) ([]clinical.Span, error) {
	if err := ctx.Err(); err != nil {
		d.metrics.ObserveDetectFailure()
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "detect cancelled")
	}
	started := time.Now()
	spans := d.detect(ctx, text, docID)
	d.metrics.ObserveDetect(time.Since(started), spans)
	return spans, nil
}

func (d *Detector) detect(ctx context.Context, text, docID string) []clinical.Span {
	if strings.TrimSpace(text) == "" || !utf8.ValidString(text) {
		return []clinical.Span{}
	}
	snap := d.glossary.Snapshot()
	if snap == nil {
		snap = glossary.Empty()
	}

	spans := d.glossaryPass(text, snap)

	docMap := d.learn(ctx, docID, acronym.ExtractParenthetical(text, snap))
	acronym.Apply(spans, docMap, snap)
	spans = append(spans, acronym.Inject(text, docMap, snap, d.negation, spans)...)
	spans = append(spans, acronym.InjectLexicon(text, docMap, snap, d.negation, spans, snap.Acronyms())...)

	spans = Resolve(spans)
	if d.ner != nil {
		spans = d.mergeNER(ctx, text, spans)
	}
	return spans
}

func (d *Detector) glossaryPass(text string, snap *glossary.Snapshot) []clinical.Span {
	hits := snap.Match(text)
	spans := make([]clinical.Span, 0, len(hits))
	for _, h := range hits {
		end := h.End - 1
		spans = append(spans, clinical.Span{
			Start:      h.Start,
			End:        end,
			Surface:    h.Surface,
			Canonical:  h.Entry.Canonical,
			Category:   h.Entry.Category,
			Negated:    d.negation.IsNegated(text, h.Start, end),
			Definition: h.Entry.Definition,
			Why:        h.Entry.Why,
			Source:     clinical.SourceGlossary,
		})
	}
	return spans
}

// learn merges learned into the document's stored map and persists it.
// When the store fails the request keeps what it learned itself.
func (d *Detector) learn(ctx context.Context, docID string, learned map[string]string) map[string]string {
	if docID == "" {
		return nil
	}
	merged, err := d.memory.Learn(ctx, docID, learned)
	if err != nil {
		d.logger.Warn("acronym memory unavailable, continuing without stored acronyms",
			logging.String("doc_id", docID),
			logging.Err(err),
		)
		d.metrics.IncDegraded(ComponentAcronymStore)
	}
	if len(learned) > 0 {
		d.metrics.AddAcronymsLearned(len(learned))
	}
	return merged
}

func (d *Detector) mergeNER(ctx context.Context, text string, final []clinical.Span) []clinical.Span {
	entities, err := d.ner.Recognize(ctx, text)
	if err != nil {
		d.logger.Warn("ner source unavailable, continuing without ner spans", logging.Err(err))
		d.metrics.IncDegraded(ComponentNER)
		return final
	}

	extra := make([]clinical.Span, 0, len(entities))
	for _, e := range entities {
		if e.Start < 0 || e.End < e.Start || e.End >= len(text) || !e.Category.IsValid() {
			continue
		}
		surface := text[e.Start : e.End+1]
		sp := clinical.Span{
			Start:     e.Start,
			End:       e.End,
			Surface:   surface,
			Canonical: surface,
			Category:  e.Category,
			Negated:   d.negation.IsNegated(text, e.Start, e.End),
			Source:    clinical.SourceNER,
		}
		if overlapsAny(final, sp) {
			continue
		}
		extra = append(extra, sp)
	}
	if len(extra) == 0 {
		return final
	}
	return Resolve(append(final, extra...))
}

// DetectBatch runs Detect for every document with bounded concurrency.
// Results are aligned with docs.  Documents sharing an ID are serialized by
// the acronym memory, so their learning order follows scheduling order.
func (d *Detector) DetectBatch(ctx context.Context, docs []Document) ([]Result, error) {
	results := make([]Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			spans, err := d.Detect(gctx, doc.Text, doc.ID)
			if err != nil {
				return err
			}
			results[i] = Result{DocID: doc.ID, Spans: spans}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Remember records canonical as the expansion of acronym for docID.  The
// canonical name must be known to the current glossary.
func (d *Detector) Remember(ctx context.Context, docID, acr, canonical string) error {
	if strings.TrimSpace(docID) == "" {
		return errors.New(errors.ErrCodeInvalidDocument, "document id is required")
	}
	snap := d.glossary.Snapshot()
	if snap == nil {
		return errors.New(errors.ErrCodeGlossaryNotLoaded, "glossary is not loaded")
	}
	e, ok := snap.Lookup(canonical)
	if !ok {
		return errors.InvalidParam("canonical is not a glossary term").WithDetail("canonical=" + canonical)
	}
	return d.memory.SaveChoice(ctx, docID, acr, e.Canonical)
}

// DocMap returns the acronym mapping stored for docID.
func (d *Detector) DocMap(ctx context.Context, docID string) (map[string]string, error) {
	return d.memory.LoadDocMap(ctx, docID)
}
