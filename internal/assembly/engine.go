package assembly

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembly/internal/items"
	mpkg "github.com/local/pdfassembly/internal/metrics"
	"github.com/local/pdfassembly/internal/planner"
)

const (
	DefaultMergeName = "merged.pdf"
	splitNameFormat  = "Split_Part_%d.pdf"
)

// Engine runs merge and split over immutable snapshots. Steps within one call run
// strictly in sequence: page-append order must match item order.
type Engine struct {
	codec Codec
}

func New(codec Codec) *Engine {
	return &Engine{codec: codec}
}

// SplitPartName returns the output name of the n-th (1-based) plan entry.
func SplitPartName(n int) string { return fmt.Sprintf(splitNameFormat, n) }

// Merge decodes every item of snap in order and appends all of its pages to a single
// output. Items that fail to decode are recorded and skipped. The returned error is
// non-nil only when ctx is cancelled, in which case no output is returned.
func (e *Engine) Merge(ctx context.Context, snap items.Snapshot, name string) (Result, error) {
	if name == "" {
		name = DefaultMergeName
	}
	start := time.Now()
	var res Result
	out := e.codec.NewBuilder()

	for i := 0; i < snap.Len(); i++ {
		if err := ctx.Err(); err != nil {
			mpkg.ObserveAssembly("merge", "cancelled", time.Since(start))
			return Result{}, err
		}
		it := snap.At(i)
		doc, err := e.open(ctx, it)
		if err != nil {
			mpkg.IncItem("merge", "decode_failed")
			log.Warn().Err(err).Str("item", it.Key).Str("kind", string(it.Kind)).Msg("merge: skipping undecodable item")
			res.fail(it.Key, ErrDecodeFailed, err)
			continue
		}
		if err := out.AppendPages(doc, allPages(doc.PageCount())); err != nil {
			mpkg.IncItem("merge", "copy_failed")
			log.Warn().Err(err).Str("item", it.Key).Msg("merge: page copy failed")
			res.fail(it.Key, ErrDecodeFailed, err)
			continue
		}
		mpkg.IncItem("merge", "ok")
		log.Debug().Str("item", it.Key).Int("pages", doc.PageCount()).Msg("merge: item appended")
	}

	if out.PageCount() == 0 {
		log.Warn().Int("items", snap.Len()).Int("failed", len(res.Failures)).Msg("merge: nothing to encode")
		mpkg.ObserveAssembly("merge", resultLabel(res), time.Since(start))
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		mpkg.ObserveAssembly("merge", "cancelled", time.Since(start))
		return Result{}, err
	}
	data, err := out.Encode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		mpkg.IncOutput("encode_failed")
		log.Error().Err(err).Str("output", name).Msg("merge: encode failed")
		res.fail(name, ErrEncodeFailed, err)
	} else {
		mpkg.IncOutput("ok")
		res.Outputs = append(res.Outputs, Output{Name: name, Data: data, Pages: out.PageCount()})
	}
	mpkg.ObserveAssembly("merge", resultLabel(res), time.Since(start))
	log.Info().
		Int("items", snap.Len()).
		Int("outputs", len(res.Outputs)).
		Int("failures", len(res.Failures)).
		Dur("duration", time.Since(start)).
		Msg("merge finished")
	return res, nil
}

// Split decodes item once and writes one output per plan entry, in plan order. A
// decode or planning failure is fatal and returned as the error; an encode failure
// drops only the affected output.
func (e *Engine) Split(ctx context.Context, item items.SourceItem, strategy planner.Strategy, params planner.Params) (Result, error) {
	start := time.Now()
	doc, err := e.open(ctx, item)
	if err != nil {
		mpkg.IncItem("split", "decode_failed")
		mpkg.ObserveAssembly("split", "failed", time.Since(start))
		return Result{}, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, item.Key, err)
	}
	mpkg.IncItem("split", "ok")

	plan, err := planner.Build(strategy, doc.PageCount(), params)
	if err != nil {
		mpkg.ObserveAssembly("split", "failed", time.Since(start))
		return Result{}, err
	}

	var res Result
	for _, rej := range plan.Rejected {
		log.Warn().Err(rej.Err).Str("item", item.Key).Int("range", rej.Index+1).Msg("split: range dropped")
		res.Failures = append(res.Failures, Failure{ItemKey: fmt.Sprintf("%s range %d", item.Key, rej.Index+1), Err: rej.Err})
	}

	for n, set := range plan.Sets {
		if err := ctx.Err(); err != nil {
			mpkg.ObserveAssembly("split", "cancelled", time.Since(start))
			return Result{}, err
		}
		name := SplitPartName(n + 1)
		out := e.codec.NewBuilder()
		if err := out.AppendPages(doc, set); err != nil {
			mpkg.IncOutput("encode_failed")
			log.Warn().Err(err).Str("output", name).Msg("split: page copy failed")
			res.fail(name, ErrEncodeFailed, err)
			continue
		}
		data, err := out.Encode(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			mpkg.IncOutput("encode_failed")
			log.Warn().Err(err).Str("output", name).Msg("split: encode failed")
			res.fail(name, ErrEncodeFailed, err)
			continue
		}
		mpkg.IncOutput("ok")
		res.Outputs = append(res.Outputs, Output{Name: name, Data: data, Pages: len(set)})
	}

	mpkg.ObserveAssembly("split", resultLabel(res), time.Since(start))
	log.Info().
		Str("item", item.Key).
		Str("strategy", string(strategy)).
		Int("pages", doc.PageCount()).
		Int("planned", len(plan.Sets)).
		Int("outputs", len(res.Outputs)).
		Int("failures", len(res.Failures)).
		Msg("split finished")
	return res, nil
}

// open decodes a PDF or embeds a raster as a one-page document.
func (e *Engine) open(ctx context.Context, it items.SourceItem) (Document, error) {
	if it.Kind.IsRaster() {
		return e.codec.EmbedRaster(ctx, it.Data, it.Kind)
	}
	if it.Kind != items.KindPDF {
		return nil, fmt.Errorf("%w: %s", items.ErrKindNotSupported, it.Kind)
	}
	return e.codec.Decode(ctx, it.Data)
}

func allPages(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func resultLabel(r Result) string {
	switch {
	case len(r.Outputs) == 0:
		return "empty"
	case len(r.Failures) > 0:
		return "partial"
	}
	return "ok"
}
