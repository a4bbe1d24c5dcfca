package driver

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/schedule"
)

var ErrInvalidRequest = errors.New("invalid request")

// RequestSpec is the serialized form of a Request. A request carries either
// an explicit graph or the input shape of a reference kernel.
type RequestSpec struct {
	Pattern string `json:"pattern"`
	// Profile names a capability profile; Capability overrides it.
	Profile    string                 `json:"profile,omitempty"`
	Capability *capability.Capability `json:"capability,omitempty"`

	Graph *graph.Spec `json:"graph,omitempty"`
	Shape []int       `json:"shape,omitempty"`
	DType graph.DType `json:"dtype,omitempty"`

	Attrs   json.RawMessage `json:"attrs,omitempty"`
	Options Options         `json:"options"`
}

// DecodeRequest reads one request spec.
func DecodeRequest(r io.Reader) (RequestSpec, error) {
	var s RequestSpec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return RequestSpec{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s, nil
}

// DecodeRequests reads a JSON array of request specs.
func DecodeRequests(r io.Reader) ([]RequestSpec, error) {
	var specs []RequestSpec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return specs, nil
}

// Resolve turns s into a Request, building the graph and looking up
// the capability profile in reg.
func (s RequestSpec) Resolve(reg *capability.Registry) (Request, error) {
	if _, err := Lookup(s.Pattern); err != nil {
		return Request{}, err
	}
	attrs, err := kernels.DecodeAttrs(s.Pattern, s.Attrs)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var capab capability.Capability
	if s.Capability != nil {
		capab = s.Capability.WithDefaults()
		if capab.Name == "" {
			capab.Name = "custom"
		}
		if err := capab.Validate(); err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	} else {
		capab, err = reg.Lookup(s.Profile)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	var outputs []*graph.Node
	switch {
	case s.Graph != nil:
		outputs, err = s.Graph.Build()
		if err != nil {
			return Request{}, graphError(err)
		}
	case len(s.Shape) > 0:
		dt := s.DType
		if dt == graph.DTypeInvalid {
			dt = defaultDType(s.Pattern)
		}
		outputs, err = kernels.Build(graph.Shape(s.Shape), dt, attrs)
		if err != nil {
			return Request{}, err
		}
	default:
		return Request{}, fmt.Errorf("%w: request needs a graph or a kernel shape", ErrInvalidRequest)
	}

	return Request{
		Outputs:    outputs,
		Attrs:      attrs,
		Capability: capab,
		Options:    s.Options,
	}, nil
}

func defaultDType(pattern string) graph.DType {
	if pattern == kernels.PatternBNUpdate {
		return graph.Float32
	}
	return graph.Float16
}

// Failed reports whether err is a scheduling failure rather than a
// malformed request.
func Failed(err error) bool {
	return schedule.Classify(err) != nil
}
