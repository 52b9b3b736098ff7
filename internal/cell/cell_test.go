package cell

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	p := Pack('h', StyleID(42))
	ch, id := Unpack(p)
	if ch != 'h' {
		t.Fatalf("ch = %q, want 'h'", ch)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestPackInvalidRune(t *testing.T) {
	p := Pack(-1, 0)
	ch, _ := Unpack(p)
	if ch != 0xFFFD {
		t.Fatalf("ch = %U, want replacement char", ch)
	}
}

func TestPackedColorRoundTrip(t *testing.T) {
	idx := NewIndexedColor(200)
	if idx.Tag() != ColorIndexed || idx.Indexed() != 200 {
		t.Fatalf("indexed color mismatch: tag=%v idx=%d", idx.Tag(), idx.Indexed())
	}

	rgb := NewRGBColor(10, 20, 30)
	if rgb.Tag() != ColorRGB {
		t.Fatalf("tag = %v, want ColorRGB", rgb.Tag())
	}
	r, g, b := rgb.RGB()
	if r != 10 || g != 20 || b != 30 {
		t.Fatalf("rgb = %d,%d,%d, want 10,20,30", r, g, b)
	}

	def := NewDefaultColor()
	if def.Tag() != ColorDefault {
		t.Fatalf("tag = %v, want ColorDefault", def.Tag())
	}
}

func TestAttrFlagsHas(t *testing.T) {
	a := AttrBold | AttrUnderline
	if !a.Has(AttrBold) || !a.Has(AttrUnderline) {
		t.Fatalf("expected bold and underline set")
	}
	if a.Has(AttrItalic) {
		t.Fatalf("did not expect italic set")
	}
}

func TestDefaultStyleIsZeroValue(t *testing.T) {
	var zero Style
	if Default != zero {
		t.Fatalf("Default must equal the zero Style value")
	}
}
