// Package planner turns a splitting strategy and a page count into the ordered
// page-index sets of a split. It performs no I/O and is deterministic.
package planner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange     = errors.New("invalid-range")
	ErrInvalidChunkSize = errors.New("invalid-chunk-size")
	ErrEmptySelection   = errors.New("empty-selection")
	ErrNoValidRanges    = errors.New("no-valid-ranges")
	ErrUnknownStrategy  = errors.New("unknown-strategy")
)

// Strategy selects how a document is partitioned.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategyCustom    Strategy = "custom"
	StrategySelection Strategy = "selection"
)

// PageRange is a 1-based inclusive page interval.
type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r PageRange) String() string { return fmt.Sprintf("%d-%d", r.From, r.To) }

// Validate checks 1 <= From <= To <= pageCount. Out-of-bounds ranges are rejected,
// never clamped.
func (r PageRange) Validate(pageCount int) error {
	if r.From < 1 || r.From > r.To || r.To > pageCount {
		return fmt.Errorf("%w: %s outside 1-%d", ErrInvalidRange, r, pageCount)
	}
	return nil
}

// Indices returns the zero-based page indices covered by r.
func (r PageRange) Indices() []int {
	out := make([]int, 0, r.To-r.From+1)
	for p := r.From; p <= r.To; p++ {
		out = append(out, p-1)
	}
	return out
}

// Params carries the inputs of every strategy; only the active one is read.
type Params struct {
	Size      int         `json:"size,omitempty"`
	Ranges    []PageRange `json:"ranges,omitempty"`
	Selection []int       `json:"pages,omitempty"`
}

// Rejection records a custom range dropped from the plan.
type Rejection struct {
	Index int
	Range PageRange
	Err   error
}

// Plan is the ordered list of page-index sets, one per output document.
type Plan struct {
	Sets     [][]int
	Rejected []Rejection
}

// Build computes the plan for strategy over a document of pageCount pages.
func Build(strategy Strategy, pageCount int, p Params) (Plan, error) {
	switch strategy {
	case StrategyFixed:
		return fixed(pageCount, p.Size)
	case StrategyCustom:
		return custom(pageCount, p.Ranges)
	case StrategySelection:
		return selection(pageCount, p.Selection)
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

// Check validates the parts of p that do not depend on the page count, so callers
// can reject a request before the source is decoded.
func Check(strategy Strategy, p Params) error {
	switch strategy {
	case StrategyFixed:
		if p.Size < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidChunkSize, p.Size)
		}
	case StrategyCustom:
		if len(p.Ranges) == 0 {
			return fmt.Errorf("%w: none declared", ErrNoValidRanges)
		}
	case StrategySelection:
		if len(p.Selection) == 0 {
			return ErrEmptySelection
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return nil
}

func fixed(pageCount, size int) (Plan, error) {
	if size < 1 {
		return Plan{}, fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	chunks := (pageCount + size - 1) / size
	plan := Plan{Sets: make([][]int, 0, chunks)}
	for start := 0; start < pageCount; start += size {
		end := start + size
		if end > pageCount {
			end = pageCount
		}
		set := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			set = append(set, i)
		}
		plan.Sets = append(plan.Sets, set)
	}
	return plan, nil
}

func custom(pageCount int, ranges []PageRange) (Plan, error) {
	var plan Plan
	for i, r := range ranges {
		if err := r.Validate(pageCount); err != nil {
			plan.Rejected = append(plan.Rejected, Rejection{Index: i, Range: r, Err: err})
			continue
		}
		plan.Sets = append(plan.Sets, r.Indices())
	}
	if len(plan.Sets) == 0 {
		return plan, fmt.Errorf("%w: %d declared", ErrNoValidRanges, len(ranges))
	}
	return plan, nil
}

// selection keeps the caller's order; pages are not sorted. Zero-based indices
// outside the document reject the whole selection.
func selection(pageCount int, pages []int) (Plan, error) {
	if len(pages) == 0 {
		return Plan{}, ErrEmptySelection
	}
	for _, idx := range pages {
		if idx < 0 || idx >= pageCount {
			return Plan{}, fmt.Errorf("%w: page index %d of %d", ErrInvalidRange, idx, pageCount)
		}
	}
	set := make([]int, len(pages))
	copy(set, pages)
	return Plan{Sets: [][]int{set}}, nil
}

// ParseRanges reads the textual form "1-3,5,8-9" into page ranges. A single number n
// stands for n-n. Bounds are not checked here; Build does that per range.
func ParseRanges(spec string) ([]PageRange, error) {
	var out []PageRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRange, part, err)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRange, part, err)
			}
		}
		out = append(out, PageRange{From: a, To: b})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parse ranges: %w: no ranges given", ErrNoValidRanges)
	}
	return out, nil
}
