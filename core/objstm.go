package core

import (
	"fmt"
	"sync"
)

// maxObjectsPerStream bounds /N of a single object stream.
const maxObjectsPerStream = 1 << 20

// ObjectStream gives access to the objects compressed into a stream of
// type /ObjStm. Objects are parsed on first use. It is safe for
// concurrent use.
type ObjectStream struct {
	body    []byte // decoded data from /First on
	entries []objStmEntry

	mu     sync.Mutex
	parsed map[int]Object // by index
}

type objStmEntry struct {
	num    int
	offset int // relative to body
}

// OpenObjectStream decodes s, with every filter output bounded by limit,
// and reads the header of object numbers and offsets.
func OpenObjectStream(s *Stream, limit int64) (*ObjectStream, error) {
	if s == nil {
		return nil, fmt.Errorf("object stream is nil")
	}
	if t, _ := s.Dict.GetName("Type"); t != "ObjStm" {
		return nil, fmt.Errorf("stream type is %v, not /ObjStm", s.Dict.Get("Type"))
	}
	n, ok := s.Dict.GetInt("N")
	if !ok || n < 0 || n > maxObjectsPerStream {
		return nil, fmt.Errorf("object stream has invalid /N %v", s.Dict.Get("N"))
	}
	first, ok := s.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has invalid /First %v", s.Dict.Get("First"))
	}

	data, err := s.DecodeLimited(limit)
	if err != nil {
		return nil, fmt.Errorf("decode object stream: %w", err)
	}
	if int(first) > len(data) {
		return nil, fmt.Errorf("/First %d beyond the %d decoded bytes", first, len(data))
	}

	entries, err := readObjStmHeader(data[:first], int(n))
	if err != nil {
		return nil, err
	}
	return &ObjectStream{
		body:    data[first:],
		entries: entries,
		parsed:  make(map[int]Object, n),
	}, nil
}

// readObjStmHeader reads n pairs of object number and offset.
func readObjStmHeader(header []byte, n int) ([]objStmEntry, error) {
	p := NewParser(header)
	next := func(what string, i int) (int, error) {
		obj, err := p.ParseObject()
		if err != nil {
			return 0, fmt.Errorf("object stream header entry %d: %w", i, err)
		}
		v, ok := obj.(Int)
		if !ok || v < 0 {
			return 0, fmt.Errorf("object stream header entry %d: %s is %v", i, what, obj)
		}
		return int(v), nil
	}

	entries := make([]objStmEntry, n)
	for i := range entries {
		num, err := next("object number", i)
		if err != nil {
			return nil, err
		}
		off, err := next("offset", i)
		if err != nil {
			return nil, err
		}
		entries[i] = objStmEntry{num: num, offset: off}
	}
	return entries, nil
}

// Len returns the number of objects in the stream.
func (o *ObjectStream) Len() int {
	return len(o.entries)
}

// Numbers returns the object numbers in header order.
func (o *ObjectStream) Numbers() []int {
	nums := make([]int, len(o.entries))
	for i, e := range o.entries {
		nums[i] = e.num
	}
	return nums
}

// At returns the object at index in header order and its object number.
func (o *ObjectStream) At(index int) (Object, int, error) {
	if index < 0 || index >= len(o.entries) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, len(o.entries))
	}
	e := o.entries[index]

	o.mu.Lock()
	defer o.mu.Unlock()
	if obj, ok := o.parsed[index]; ok {
		return obj, e.num, nil
	}

	if e.offset >= len(o.body) {
		return nil, 0, fmt.Errorf("object %d offset %d beyond the stream data", e.num, e.offset)
	}
	end := len(o.body)
	if index+1 < len(o.entries) {
		if next := o.entries[index+1].offset; next > e.offset && next < end {
			end = next
		}
	}
	obj, err := NewParser(o.body[e.offset:end]).ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("object %d in object stream: %w", e.num, err)
	}
	o.parsed[index] = obj
	return obj, e.num, nil
}

// Find returns the object numbered num.
func (o *ObjectStream) Find(num int) (Object, error) {
	for i, e := range o.entries {
		if e.num == num {
			obj, _, err := o.At(i)
			return obj, err
		}
	}
	return nil, fmt.Errorf("object %d not in object stream", num)
}
