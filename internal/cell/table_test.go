package cell

import "testing"

func TestTableReservesIDZero(t *testing.T) {
	tbl := NewTable()
	s, ok := tbl.Get(0)
	if !ok || s != Default {
		t.Fatalf("StyleID(0) must be Default, got %+v ok=%v", s, ok)
	}
}

func TestTableEnsureIDDedups(t *testing.T) {
	tbl := NewTable()
	s := Style{Fg: NewIndexedColor(1), Attrs: AttrBold}
	id1 := tbl.EnsureID(s)
	id2 := tbl.EnsureID(s)
	if id1 != id2 {
		t.Fatalf("same style produced different ids: %d vs %d", id1, id2)
	}
	if id1 == 0 {
		t.Fatalf("new style should not reuse StyleID(0)")
	}
}

func TestTableEnsureIDMonotonic(t *testing.T) {
	tbl := NewTable()
	a := tbl.EnsureID(Style{Fg: NewIndexedColor(1)})
	b := tbl.EnsureID(Style{Fg: NewIndexedColor(2)})
	if b <= a {
		t.Fatalf("ids must be monotonically increasing: a=%d b=%d", a, b)
	}
}

func TestTableSetReplacesAndReindexes(t *testing.T) {
	tbl := NewTable()
	id := tbl.EnsureID(Style{Fg: NewIndexedColor(5)})

	replacement := Style{Fg: NewIndexedColor(9), Attrs: AttrItalic}
	tbl.Set(id, replacement)

	got, ok := tbl.Get(id)
	if !ok || got != replacement {
		t.Fatalf("Get(%d) = %+v, want %+v", id, got, replacement)
	}

	// The reverse index must point at the new style, not stale at the old one.
	again := tbl.EnsureID(replacement)
	if again != id {
		t.Fatalf("EnsureID on replaced style returned %d, want %d", again, id)
	}
}

func TestTableSetNeverReplacesIDZero(t *testing.T) {
	tbl := NewTable()
	tbl.Set(0, Style{Fg: NewIndexedColor(77)})
	s, _ := tbl.Get(0)
	if s != Default {
		t.Fatalf("StyleID(0) must remain immutable, got %+v", s)
	}
}
