package contentstream

import (
	"testing"

	"github.com/tsawler/pdfreplace/core"
)

func TestWriteUnchangedIsIdentity(t *testing.T) {
	inputs := []string{
		"BT /F1 12 Tf 72 720 Td (Hello) Tj ET",
		"q\r\n% comment\r\nBT[(A)-20(B)]TJ ET Q\n\n",
		"BI /W 1 /H 1 ID \x01 EI\nBT (x) Tj ET",
		"BT (dangling operands) 1 2",
	}
	for _, in := range inputs {
		c, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", in, err)
		}
		if got := string(Write(c, c.Ops)); got != in {
			t.Errorf("Write() = %q, want %q", got, in)
		}
	}
}

func TestWriteModified(t *testing.T) {
	in := "BT\n/F1 12 Tf\n(Invoice #123) Tj\nET"
	c, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ops := append([]Operation(nil), c.Ops...)
	ops[2] = ops[2].Clone()
	ops[2].Operands[0] = core.String("Invoice #456")
	ops[2].Modified = true

	want := "BT\n/F1 12 Tf\n(Invoice #456) Tj\nET"
	if got := string(Write(c, ops)); got != want {
		t.Errorf("Write() = %q, want %q", got, want)
	}
	if string(c.Ops[2].Operands[0].(core.String)) != "Invoice #123" {
		t.Error("Clone must not share operands with the parsed operation")
	}
}

func TestWriteRemoveAndInsert(t *testing.T) {
	in := "BT (Inv) Tj 10 0 Td (oice) Tj ET"
	c, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	first := c.Ops[1].Clone()
	first.Operands[0] = core.String("Receipt")
	first.Modified = true

	ops := []Operation{c.Ops[0], first, c.Ops[2], NewOperation("Td", core.Int(0), core.Int(0)), c.Ops[4]}
	want := "BT (Receipt) Tj 10 0 Td\n0 0 Td ET"
	if got := string(Write(c, ops)); got != want {
		t.Errorf("Write() = %q, want %q", got, want)
	}
}

func TestWriteHexAndSeparation(t *testing.T) {
	in := "<0041>Tj"
	c, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	op := c.Ops[0].Clone()
	op.Operands[0] = core.String("\x00B")
	op.Modified = true

	if got := string(Write(c, []Operation{op})); got != "<0042> Tj" {
		t.Errorf("Write() = %q, want %q", got, "<0042> Tj")
	}
}

func TestAppendOperationTJ(t *testing.T) {
	op := NewOperation("TJ", core.Array{core.String("a"), core.Int(-120), core.String("b(")})
	if got := string(AppendOperation(nil, &op)); got != `[(a) -120 (b\()] TJ` {
		t.Errorf("AppendOperation() = %q", got)
	}
}
