package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestObjectString(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		want string
	}{
		{"null", Null{}, "null"},
		{"bool", Bool(false), "false"},
		{"int", Int(-42), "-42"},
		{"real", Real(3.5), "3.5"},
		{"integral real", Real(-2), "-2"},
		{"string is raw", String("a(b)"), "a(b)"},
		{"name", Name("Helv"), "/Helv"},
		{"name with delimiter", Name("A/B"), "/A#2FB"},
		{"empty array", Array{}, "[]"},
		{"nested array", Array{Int(1), Array{Real(0.5)}, Null{}}, "[1 [0.5] null]"},
		{"empty dict", Dict{}, "<<>>"},
		{"dict", Dict{"Font": Dict{"F1": IndirectRef{7, 0}}}, "<</Font <</F1 7 0 R>>>>"},
		{"ref", IndirectRef{Number: 12, Generation: 2}, "12 2 R"},
		{"stream", &Stream{Dict: Dict{"Filter": Name("FlateDecode")}, Data: make([]byte, 10)}, "<</Filter /FlateDecode>> stream (10 bytes)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obj.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		obj  Object
		want float64
		ok   bool
	}{
		{Int(9), 9, true},
		{Real(-1.25), -1.25, true},
		{Name("9"), 0, false},
		{String("9"), 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := Number(tt.obj)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Number(%v) = %v, %v; want %v, %v", tt.obj, got, ok, tt.want, tt.ok)
		}
	}
}

func TestArrayGetters(t *testing.T) {
	a := Array{Int(1), Real(0.5), Name("Tj")}

	if a.Len() != 3 {
		t.Errorf("Len() = %d, want 3", a.Len())
	}
	if a.Get(-1) != nil || a.Get(3) != nil {
		t.Error("Get() out of range should return nil")
	}
	if v, ok := a.GetInt(0); !ok || v != 1 {
		t.Errorf("GetInt(0) = %v, %v", v, ok)
	}
	if v, ok := a.GetReal(1); !ok || v != 0.5 {
		t.Errorf("GetReal(1) = %v, %v", v, ok)
	}
	if v, ok := a.GetName(2); !ok || v != "Tj" {
		t.Errorf("GetName(2) = %v, %v", v, ok)
	}
	if _, ok := a.GetInt(1); ok {
		t.Error("GetInt() on a real should fail")
	}
	if _, ok := a.GetName(5); ok {
		t.Error("GetName() out of range should fail")
	}
}

func TestDictGetters(t *testing.T) {
	stream := &Stream{Data: []byte("q Q")}
	d := Dict{
		"Type":      Name("Font"),
		"FirstChar": Int(32),
		"Scale":     Real(0.001),
		"BaseFont":  String("Helvetica"),
		"Embedded":  Bool(true),
		"Resources": Dict{},
		"Widths":    Array{Int(250)},
		"Contents":  stream,
		"Parent":    IndirectRef{Number: 2},
		"Missing":   Null{},
	}

	if v, ok := d.GetName("Type"); !ok || v != "Font" {
		t.Errorf("GetName() = %v, %v", v, ok)
	}
	if v, ok := d.GetInt("FirstChar"); !ok || v != 32 {
		t.Errorf("GetInt() = %v, %v", v, ok)
	}
	if v, ok := d.GetReal("Scale"); !ok || v != 0.001 {
		t.Errorf("GetReal() = %v, %v", v, ok)
	}
	if v, ok := d.GetString("BaseFont"); !ok || v != "Helvetica" {
		t.Errorf("GetString() = %v, %v", v, ok)
	}
	if v, ok := d.GetBool("Embedded"); !ok || !bool(v) {
		t.Errorf("GetBool() = %v, %v", v, ok)
	}
	if _, ok := d.GetDict("Resources"); !ok {
		t.Error("GetDict() failed")
	}
	if v, ok := d.GetArray("Widths"); !ok || len(v) != 1 {
		t.Errorf("GetArray() = %v, %v", v, ok)
	}
	if v, ok := d.GetStream("Contents"); !ok || v != stream {
		t.Errorf("GetStream() = %v, %v", v, ok)
	}
	if v, ok := d.GetIndirectRef("Parent"); !ok || v.Number != 2 {
		t.Errorf("GetIndirectRef() = %v, %v", v, ok)
	}

	// Wrong type and absent keys both fail.
	if _, ok := d.GetInt("Type"); ok {
		t.Error("GetInt() on a name should fail")
	}
	if _, ok := d.GetDict("Absent"); ok {
		t.Error("GetDict() on an absent key should fail")
	}
	if !d.Has("Missing") || d.Has("Absent") {
		t.Error("Has() should see null values but not absent keys")
	}
}

func TestDictMutation(t *testing.T) {
	d := Dict{"B": Int(2), "A": Int(1)}
	d.Set("C", Int(3))
	d.Delete("B")

	if diff := cmp.Diff([]string{"A", "C"}, d.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestDictClone(t *testing.T) {
	inner := Array{Int(1)}
	d := Dict{"Kids": inner, "Count": Int(1)}

	c := d.Clone()
	c["Count"] = Int(2)
	if n, _ := d.GetInt("Count"); n != 1 {
		t.Error("Clone() shares the map with the original")
	}
	if kids, _ := c.GetArray("Kids"); &kids[0] != &inner[0] {
		t.Error("Clone() should share values")
	}

	var nilDict Dict
	if c := nilDict.Clone(); c == nil {
		t.Error("Clone() of a nil dict should not be nil")
	}
}
