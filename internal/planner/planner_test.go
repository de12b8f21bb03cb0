package planner

import (
	"errors"
	"reflect"
	"testing"
)

func TestFixedPartitionsAllPages(t *testing.T) {
	for pages := 0; pages <= 23; pages++ {
		for size := 1; size <= 7; size++ {
			plan, err := Build(StrategyFixed, pages, Params{Size: size})
			if err != nil {
				t.Fatalf("P=%d S=%d: %v", pages, size, err)
			}
			chunks := (pages + size - 1) / size
			if len(plan.Sets) != chunks {
				t.Fatalf("P=%d S=%d: %d chunks, want %d", pages, size, len(plan.Sets), chunks)
			}
			next := 0
			for _, set := range plan.Sets {
				for _, idx := range set {
					if idx != next {
						t.Fatalf("P=%d S=%d: gap or overlap at %d (got %d)", pages, size, next, idx)
					}
					next++
				}
			}
			if next != pages {
				t.Fatalf("P=%d S=%d: covered %d pages", pages, size, next)
			}
			if chunks > 0 {
				last := len(plan.Sets[chunks-1])
				if want := pages - size*(chunks-1); last != want {
					t.Fatalf("P=%d S=%d: last chunk %d, want %d", pages, size, last, want)
				}
			}
		}
	}
}

func TestFixedRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := Build(StrategyFixed, 10, Params{Size: size}); !errors.Is(err, ErrInvalidChunkSize) {
			t.Fatalf("size %d: expected ErrInvalidChunkSize, got %v", size, err)
		}
	}
}

func TestCustomDropsInvalidRangesIndividually(t *testing.T) {
	plan, err := Build(StrategyCustom, 4, Params{Ranges: []PageRange{{1, 2}, {5, 3}}})
	if err != nil {
		t.Fatalf("plan should not be rejected: %v", err)
	}
	if !reflect.DeepEqual(plan.Sets, [][]int{{0, 1}}) {
		t.Fatalf("sets = %v", plan.Sets)
	}
	if len(plan.Rejected) != 1 {
		t.Fatalf("rejected = %v", plan.Rejected)
	}
	rej := plan.Rejected[0]
	if rej.Index != 1 || rej.Range != (PageRange{5, 3}) || !errors.Is(rej.Err, ErrInvalidRange) {
		t.Fatalf("unexpected rejection %+v", rej)
	}
}

func TestCustomKeepsDeclarationOrder(t *testing.T) {
	plan, err := Build(StrategyCustom, 10, Params{Ranges: []PageRange{{7, 9}, {0, 2}, {1, 1}, {3, 11}, {2, 4}}})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{6, 7, 8}, {0}, {1, 2, 3}}
	if !reflect.DeepEqual(plan.Sets, want) {
		t.Fatalf("sets = %v, want %v", plan.Sets, want)
	}
	if len(plan.Rejected) != 2 || plan.Rejected[0].Index != 1 || plan.Rejected[1].Index != 3 {
		t.Fatalf("rejected = %+v", plan.Rejected)
	}
}

func TestCustomAllInvalid(t *testing.T) {
	plan, err := Build(StrategyCustom, 3, Params{Ranges: []PageRange{{4, 4}, {2, 1}}})
	if !errors.Is(err, ErrNoValidRanges) {
		t.Fatalf("expected ErrNoValidRanges, got %v", err)
	}
	if len(plan.Rejected) != 2 {
		t.Fatalf("every range should be reported, got %d", len(plan.Rejected))
	}
	if _, err := Build(StrategyCustom, 3, Params{}); !errors.Is(err, ErrNoValidRanges) {
		t.Fatalf("no ranges: expected ErrNoValidRanges, got %v", err)
	}
}

func TestSelection(t *testing.T) {
	if _, err := Build(StrategySelection, 5, Params{}); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
	sel := []int{3, 0, 2}
	plan, err := Build(StrategySelection, 5, Params{Selection: sel})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.Sets, [][]int{{3, 0, 2}}) {
		t.Fatalf("click order not preserved: %v", plan.Sets)
	}
	sel[0] = 4
	if plan.Sets[0][0] != 3 {
		t.Fatalf("plan aliases caller selection")
	}
	for _, bad := range [][]int{{0, 5}, {-1}, {7, 1}} {
		if _, err := Build(StrategySelection, 5, Params{Selection: bad}); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("selection %v: expected ErrInvalidRange, got %v", bad, err)
		}
	}
}

func TestUnknownStrategy(t *testing.T) {
	if _, err := Build("zigzag", 5, Params{}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	inputs := []struct {
		s Strategy
		n int
		p Params
	}{
		{StrategyFixed, 17, Params{Size: 4}},
		{StrategyCustom, 9, Params{Ranges: []PageRange{{2, 5}, {9, 1}, {6, 9}}}},
		{StrategySelection, 9, Params{Selection: []int{8, 1, 4}}},
	}
	for _, in := range inputs {
		a, errA := Build(in.s, in.n, in.p)
		b, errB := Build(in.s, in.n, in.p)
		if !reflect.DeepEqual(a, b) || (errA == nil) != (errB == nil) {
			t.Fatalf("%s: plans differ: %v vs %v", in.s, a, b)
		}
	}
}

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges(" 1-3, 5 ,8-9,")
	if err != nil {
		t.Fatal(err)
	}
	want := []PageRange{{1, 3}, {5, 5}, {8, 9}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, bad := range []string{"", "a-3", "2-x", " , "} {
		if _, err := ParseRanges(bad); err == nil {
			t.Fatalf("ParseRanges(%q) should fail", bad)
		}
	}
	if _, err := ParseRanges("a-3"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidRange)
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		strategy Strategy
		params   Params
		want     error
	}{
		{StrategyFixed, Params{Size: 2}, nil},
		{StrategyFixed, Params{}, ErrInvalidChunkSize},
		{StrategyCustom, Params{Ranges: []PageRange{{From: 9, To: 1}}}, nil},
		{StrategyCustom, Params{}, ErrNoValidRanges},
		{StrategySelection, Params{Selection: []int{3}}, nil},
		{StrategySelection, Params{}, ErrEmptySelection},
		{"zigzag", Params{Size: 1}, ErrUnknownStrategy},
	}
	for _, c := range cases {
		err := Check(c.strategy, c.params)
		if c.want == nil && err != nil || c.want != nil && !errors.Is(err, c.want) {
			t.Errorf("Check(%s, %+v) = %v, want %v", c.strategy, c.params, err, c.want)
		}
	}
}
