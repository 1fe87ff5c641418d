package core

import (
	"fmt"

	"github.com/tsawler/pdfreplace/internal/filters"
)

// ErrStreamTooLarge is returned by DecodeLimited when a filter output
// exceeds the limit.
var ErrStreamTooLarge = filters.ErrTooLarge

// Decode returns the stream data with every filter in /Filter applied.
func (s *Stream) Decode() ([]byte, error) {
	return s.DecodeLimited(0)
}

// DecodeLimited is Decode with an upper bound on the size of every
// intermediate and final result. A limit of 0 means unlimited.
func (s *Stream) DecodeLimited(limit int64) ([]byte, error) {
	names, params, err := s.filterChain()
	if err != nil {
		return nil, err
	}
	data := s.Data
	for i, name := range names {
		data, err = filters.Decode(name, data, params[i], limit)
		if err != nil {
			if len(names) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("filter %d (%s): %w", i, name, err)
		}
	}
	return data, nil
}

// filterChain lists the filters of the stream with their parameters. A
// single parameter dictionary alongside an array of filters applies to
// each of them.
func (s *Stream) filterChain() ([]string, []filters.Params, error) {
	parms := s.Dict.Get("DecodeParms")
	if parms == nil {
		parms = s.Dict.Get("DP")
	}
	paramsAt := func(i int) filters.Params {
		if arr, ok := parms.(Array); ok {
			return toParams(arr.Get(i))
		}
		return toParams(parms)
	}

	switch f := s.Dict.Get("Filter").(type) {
	case nil, Null:
		return nil, nil, nil
	case Name:
		return []string{string(f)}, []filters.Params{paramsAt(0)}, nil
	case Array:
		names := make([]string, len(f))
		params := make([]filters.Params, len(f))
		for i, item := range f {
			name, ok := item.(Name)
			if !ok {
				return nil, nil, fmt.Errorf("filter %d is %T, not a name", i, item)
			}
			names[i], params[i] = string(name), paramsAt(i)
		}
		return names, params, nil
	default:
		return nil, nil, fmt.Errorf("invalid /Filter %T", f)
	}
}

// toParams converts a parameter dictionary to plain Go values.
func toParams(obj Object) filters.Params {
	d, ok := obj.(Dict)
	if !ok {
		return nil
	}
	p := make(filters.Params, len(d))
	for k, v := range d {
		switch v := v.(type) {
		case Int:
			p[k] = int(v)
		case Real:
			p[k] = float64(v)
		case Bool:
			p[k] = bool(v)
		case Name:
			p[k] = string(v)
		case String:
			p[k] = string(v)
		}
	}
	return p
}
