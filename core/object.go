package core

import (
	"maps"
	"slices"
)

// Object is a PDF object: one of Null, Bool, Int, Real, String, Name,
// Array, Dict, *Stream or IndirectRef.
//
// String returns PDF syntax for every type except String, whose String
// method returns the raw bytes.
type Object interface {
	String() string
	pdfObject()
}

// Null is the PDF null object.
type Null struct{}

// Bool is a PDF boolean.
type Bool bool

// Int is a PDF integer.
type Int int64

// Real is a PDF real number.
type Real float64

// String is a PDF string. The value holds the decoded bytes; whether it
// was written in literal or hex form is recorded by the caller.
type String string

// Name is a PDF name without the leading slash.
type Name string

// Array is a PDF array.
type Array []Object

// Dict is a PDF dictionary keyed by names without the leading slash.
type Dict map[string]Object

// Stream is a PDF stream. Data holds the bytes as stored in the file.
type Stream struct {
	Dict Dict
	Data []byte
}

// IndirectRef is a reference "num gen R".
type IndirectRef struct {
	Number     int
	Generation int
}

// IndirectObject is an object together with the reference it was
// defined under.
type IndirectObject struct {
	Ref    IndirectRef
	Object Object
}

func (Null) pdfObject()        {}
func (Bool) pdfObject()        {}
func (Int) pdfObject()         {}
func (Real) pdfObject()        {}
func (String) pdfObject()      {}
func (Name) pdfObject()        {}
func (Array) pdfObject()       {}
func (Dict) pdfObject()        {}
func (*Stream) pdfObject()     {}
func (IndirectRef) pdfObject() {}

func (n Null) String() string        { return "null" }
func (b Bool) String() string        { return string(AppendObject(nil, b)) }
func (i Int) String() string         { return string(AppendObject(nil, i)) }
func (r Real) String() string        { return string(AppendObject(nil, r)) }
func (s String) String() string      { return string(s) }
func (n Name) String() string        { return string(AppendObject(nil, n)) }
func (a Array) String() string       { return string(AppendObject(nil, a)) }
func (d Dict) String() string        { return string(AppendObject(nil, d)) }
func (r IndirectRef) String() string { return string(AppendObject(nil, r)) }

// String describes the stream without its data.
func (s *Stream) String() string {
	return s.Dict.String() + " stream (" + Int(len(s.Data)).String() + " bytes)"
}

// Number returns the value of an Int or Real.
func Number(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// as converts obj to T, treating nil as absent.
func as[T Object](obj Object) (T, bool) {
	v, ok := obj.(T)
	return v, ok
}

// Len returns the number of elements.
func (a Array) Len() int {
	return len(a)
}

// Get returns the element at index, or nil when out of range.
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

func (a Array) GetInt(index int) (Int, bool)   { return as[Int](a.Get(index)) }
func (a Array) GetReal(index int) (Real, bool) { return as[Real](a.Get(index)) }
func (a Array) GetName(index int) (Name, bool) { return as[Name](a.Get(index)) }

// Get returns the value for key, or nil.
func (d Dict) Get(key string) Object {
	return d[key]
}

func (d Dict) GetName(key string) (Name, bool)               { return as[Name](d[key]) }
func (d Dict) GetInt(key string) (Int, bool)                 { return as[Int](d[key]) }
func (d Dict) GetReal(key string) (Real, bool)               { return as[Real](d[key]) }
func (d Dict) GetString(key string) (String, bool)           { return as[String](d[key]) }
func (d Dict) GetBool(key string) (Bool, bool)               { return as[Bool](d[key]) }
func (d Dict) GetDict(key string) (Dict, bool)               { return as[Dict](d[key]) }
func (d Dict) GetArray(key string) (Array, bool)             { return as[Array](d[key]) }
func (d Dict) GetStream(key string) (*Stream, bool)          { return as[*Stream](d[key]) }
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) { return as[IndirectRef](d[key]) }

// Has reports whether key is present, even with a null value.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

func (d Dict) Set(key string, value Object) { d[key] = value }
func (d Dict) Delete(key string)            { delete(d, key) }

// Keys returns the keys in sorted order.
func (d Dict) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// Clone returns a shallow copy that is never nil. Values are shared.
func (d Dict) Clone() Dict {
	c := make(Dict, len(d)+1)
	maps.Copy(c, d)
	return c
}
