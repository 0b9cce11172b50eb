package interval

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 10, 14, h, m, 0, 0, time.UTC)
}

func iv(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func equalLists(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestIntersect(t *testing.T) {
	got, ok := Intersect(iv(9, 0, 11, 0), iv(10, 0, 12, 0))
	if !ok || !got.Start.Equal(at(10, 0)) || !got.End.Equal(at(11, 0)) {
		t.Fatalf("unexpected overlap: %+v ok=%v", got, ok)
	}
	if _, ok := Intersect(iv(9, 0, 10, 0), iv(10, 0, 11, 0)); ok {
		t.Fatalf("touching intervals must not overlap")
	}
}

func TestNormalize_MergesAndDropsEmpty(t *testing.T) {
	in := []Interval{iv(12, 0, 13, 0), iv(9, 0, 10, 0), iv(9, 30, 11, 0), iv(11, 0, 11, 30), iv(14, 0, 14, 0)}
	want := []Interval{iv(9, 0, 11, 30), iv(12, 0, 13, 0)}
	if got := Normalize(in); !equalLists(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInvert_UnsortedOverlappingBusy(t *testing.T) {
	window := iv(8, 0, 18, 0)
	busy := []Interval{iv(13, 0, 14, 0), iv(7, 0, 9, 0), iv(12, 30, 13, 30), iv(17, 0, 19, 0)}
	want := []Interval{iv(9, 0, 12, 30), iv(14, 0, 17, 0)}
	if got := Invert(busy, window); !equalLists(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInvert_FreeAndBusyPartitionWindow(t *testing.T) {
	window := iv(8, 0, 18, 0)
	busy := []Interval{iv(10, 0, 11, 0), iv(10, 30, 12, 0), iv(15, 0, 16, 0)}
	free := Invert(busy, window)

	clipped := Clip(busy, window)
	for _, f := range free {
		for _, b := range clipped {
			if _, ok := Intersect(f, b); ok {
				t.Fatalf("free %+v overlaps busy %+v", f, b)
			}
		}
	}
	union := Normalize(append(append([]Interval{}, free...), clipped...))
	if !equalLists(union, []Interval{window}) {
		t.Fatalf("free + busy should cover the window, got %+v", union)
	}
}

func TestInvert_NoBusyReturnsWindow(t *testing.T) {
	window := iv(8, 0, 18, 0)
	if got := Invert(nil, window); !equalLists(got, []Interval{window}) {
		t.Fatalf("got %+v", got)
	}
}

func TestIntersectAll_OrderIndependent(t *testing.T) {
	a := []Interval{iv(8, 0, 12, 0), iv(14, 0, 18, 0)}
	b := []Interval{iv(9, 0, 15, 0)}
	c := []Interval{iv(10, 0, 10, 30), iv(11, 0, 16, 0)}

	want := []Interval{iv(10, 0, 10, 30), iv(11, 0, 12, 0), iv(14, 0, 15, 0)}
	orders := [][][]Interval{{a, b, c}, {c, b, a}, {b, a, c}, {c, a, b}}
	for i, lists := range orders {
		if got := IntersectAll(lists); !equalLists(got, want) {
			t.Fatalf("order %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestIntersectAll_EmptyInputs(t *testing.T) {
	if got := IntersectAll(nil); len(got) != 0 {
		t.Fatalf("expected no common time, got %+v", got)
	}
	if got := IntersectAll([][]Interval{{iv(8, 0, 9, 0)}, nil}); len(got) != 0 {
		t.Fatalf("a participant with no availability blocks everything, got %+v", got)
	}
}
