// Package debugger layers gdb-style debugging on top of the trace decoder: a
// bounded window over the step sequence, a reconstructed frame stack, and
// AST-correlation heuristics recovering named values from raw stack words.
package debugger

import (
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// ValueKind classifies how a recovered value relates to the source.
type ValueKind string

const (
	KindVariable  ValueKind = "variable"
	KindTemporary ValueKind = "temporary"
	KindReturn    ValueKind = "return"
)

// Value is a recovered named quantity. Only numeric (single stack word)
// values are supported. Values are immutable once created.
type Value struct {
	Type   string
	Name   string
	Value  *uint256.Int
	Kind   ValueKind
	Origin string
}

// Repr renders the value the way a user expects for its declared type:
// addresses are EIP-55 checksummed, everything else is decimal.
func (v *Value) Repr() string {
	if v.Type == "address" {
		return common.BytesToAddress(v.Value.Bytes()).Hex()
	}

	return v.Value.Dec()
}

func (v *Value) String() string {
	name := v.Name
	if name == "" {
		name = "?"
	}

	return fmt.Sprintf("%s %s = %s", v.Type, name, v.Repr())
}

// ValueObject is the wire form of a Value in protocol responses.
type ValueObject struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Kind   string `json:"kind"`
	Origin string `json:"origin,omitempty"`
	String string `json:"string"`
}

func (v *Value) Object() ValueObject {
	return ValueObject{
		Type:   v.Type,
		Name:   v.Name,
		Value:  v.Repr(),
		Kind:   string(v.Kind),
		Origin: v.Origin,
		String: v.String(),
	}
}

// Function is recovered call-site metadata: the function's name and its
// parameter values read off the stack at entry.
type Function struct {
	Name       string
	Parameters []*Value
}

func (f *Function) String() string {
	params := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = p.String()
	}

	return "function " + f.Name + "(" + strings.Join(params, ", ") + ")"
}

// FunctionObject is the wire form of a Function.
type FunctionObject struct {
	Name       string        `json:"name"`
	Parameters []ValueObject `json:"parameters"`
	String     string        `json:"string"`
}

func (f *Function) Object() FunctionObject {
	params := make([]ValueObject, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = p.Object()
	}

	return FunctionObject{Name: f.Name, Parameters: params, String: f.String()}
}

// Frame is one reconstructed call-stack entry. Locals and return values are
// discovered incrementally while stepping; the function is attached once its
// entry is recognized.
type Frame struct {
	Prev *trace.TraceStep
	Cur  *trace.TraceStep

	Locals       map[string]*Value
	ReturnValues []*Value
	Function     *Function
}

func NewFrame(prev, cur *trace.TraceStep) *Frame {
	return &Frame{
		Prev:   prev,
		Cur:    cur,
		Locals: map[string]*Value{},
	}
}

// Step is one slot of the debug window: the underlying trace step, its
// call-stack event, the AST nodes covering exactly its source range, and any
// temporary values recovered at it. Invalid slots (past end of trace) carry a
// nil TraceStep.
type Step struct {
	TraceStep *trace.TraceStep
	Event     trace.CallStackEvent
	AST       map[string]*artifact.Node
	Values    map[string]*Value
}

// Valid reports whether the slot holds step information.
func (s *Step) Valid() bool {
	return s.TraceStep != nil
}
