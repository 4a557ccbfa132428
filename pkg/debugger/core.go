package debugger

import (
	"context"
	"strings"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// DefaultWindowSize is the number of steps buffered on each side of the
// current one.
const DefaultWindowSize = 50

// invalidStep marks window slots past the end of the trace. It is shared; its
// maps stay nil and are never written.
var invalidStep = &Step{Event: trace.CallStackEvent{Kind: trace.EventNone}}

// Core drives the trace through a fixed look-ahead/look-behind window,
// maintains the reconstructed frame stack, and recovers variable, parameter
// and return values by correlating opcode patterns with the AST nodes mapped
// to each step's source range. Recovery is best effort on typical compiler
// output; optimized or inline-assembly paths can defeat it.
type Core struct {
	log      logrus.FieldLogger
	dec      *trace.Decoder
	it       *trace.Iterator
	astIndex *artifact.SourceIndex

	windowSize int
	window     []*Step

	frames []*Frame
}

// NewCore fetches the trace for a transaction and positions the window on its
// first step, seeding a synthetic root frame spanning it.
func NewCore(ctx context.Context, log logrus.FieldLogger, dec *trace.Decoder, astIndex *artifact.SourceIndex, txhash string, windowSize int) (*Core, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	it, err := dec.Trace(ctx, txhash)
	if err != nil {
		return nil, err
	}

	c := &Core{
		log:        log.WithField("component", "debugger/core"),
		dec:        dec,
		it:         it,
		astIndex:   astIndex,
		windowSize: windowSize,
		window:     make([]*Step, 2*windowSize+1),
	}

	for i := range c.window {
		c.window[i] = invalidStep
	}

	c.moveWindow(windowSize + 1)

	first := c.getStepRel(0)
	if first.Valid() {
		c.pushFrame(NewFrame(first.TraceStep, first.TraceStep))
	}

	return c, nil
}

func (c *Core) moveWindow(n int) {
	for ; n > 0; n-- {
		copy(c.window, c.window[1:])

		next := invalidStep

		if step, event, ok := c.it.Next(); ok {
			next = &Step{
				TraceStep: step,
				Event:     event,
				AST:       c.astNodes(step),
				Values:    map[string]*Value{},
			}
		}

		c.window[len(c.window)-1] = next
	}
}

func (c *Core) astNodes(step *trace.TraceStep) map[string]*artifact.Node {
	return c.astIndex.Lookup(step.Code.UnitName, step.Start, step.Length, step.File)
}

func (c *Core) getStepRel(i int) *Step {
	idx := c.windowSize + i
	if idx < 0 || idx >= len(c.window) {
		return invalidStep
	}

	return c.window[idx]
}

func (c *Core) pushFrame(f *Frame) {
	c.frames = append(c.frames, f)
}

func (c *Core) popFrame() {
	if len(c.frames) > 0 {
		c.frames = c.frames[:len(c.frames)-1]
	}
}

// Step advances one instruction: the window slides one slot, the new current
// step's call-stack event is applied to the frame stack, and the value
// recovery heuristics run. Once the trace is exhausted this is a no-op and
// the current step reports invalid.
func (c *Core) Step() {
	c.moveWindow(1)

	s := c.getStepRel(0)
	if !s.Valid() {
		return
	}

	switch s.Event.Kind {
	case trace.EventPush:
		c.pushFrame(NewFrame(s.Event.Prev, s.Event.Step))
	case trace.EventPop:
		c.popFrame()
	}

	if len(c.frames) == 0 {
		// A delegate call performed via inline assembly is not detected and
		// pushes no frame; the final return is then unmatched. Tolerated.
		return
	}

	f := c.frames[len(c.frames)-1]

	c.recoverValues(s, f)
}

// recoverValues applies the AST-correlation heuristics for the current step
// and files each recovered value into the step (temporaries), the frame's
// locals (variables and parameters) or the frame's return list. Values are
// append-only per step and frame.
func (c *Core) recoverValues(s *Step, f *Frame) {
	op := strings.ToUpper(s.TraceStep.Op)

	var values []*Value

	if node, ok := s.AST["ExpressionStatement"]; ok && op == "SWAP1" {
		values = append(values, c.searchExpressionStatement(s, node)...)
	}

	if len(values) == 0 {
		if node, ok := s.AST["VariableDeclarationStatement"]; ok && isDeclarationSwap(op) {
			values = append(values, c.searchVariableDeclarationStatement(s, node)...)
		}
	}

	if len(values) == 0 {
		if node, ok := s.AST["FunctionDefinition"]; ok && op == "JUMP" {
			if fn := c.searchFunctionReturn(s, node); fn != nil && f.Function != nil && f.Function.Name == fn.Name {
				values = append(values, fn.Parameters...)
			}
		}
	}

	if len(values) == 0 {
		if node, ok := s.AST["FunctionDefinition"]; ok && op == "JUMPDEST" {
			if fn := c.searchFunctionDefinition(s, node); fn != nil && f.Function == nil {
				values = append(values, fn.Parameters...)
				f.Function = fn
			}
		}
	}

	if len(values) == 0 && op == "CALLVALUE" {
		// The received value lands on top of the stack at the next step.
		if next := c.getStepRel(1); next.Valid() && len(next.TraceStep.Stack) > 0 {
			if v, ok := parseWord(next.TraceStep.Stack[len(next.TraceStep.Stack)-1]); ok {
				values = append(values, &Value{
					Type: "uint256", Name: "msg.value", Value: v, Kind: KindVariable,
				})
			}
		}
	}

	for _, v := range values {
		switch v.Kind {
		case KindTemporary:
			s.Values[v.Name] = v
		case KindVariable:
			f.Locals[v.Name] = v
		case KindReturn:
			f.ReturnValues = append(f.ReturnValues, v)
		}
	}
}

func isDeclarationSwap(op string) bool {
	return op == "SWAP1" || op == "SWAP2" || op == "SWAP3"
}

// extractVariable builds a Value for an AST node from the stack word at the
// given depth below the top. Anonymous nodes become temporaries named by
// their own source text.
func (c *Core) extractVariable(step *trace.TraceStep, node *artifact.Node, stackPos int, origin string) []*Value {
	vtype := node.TypeString
	if vtype == "" {
		vtype = "T?"
	}

	name := node.Name
	kind := KindVariable

	if name == "" {
		kind = KindTemporary
		name = c.anonymousName(step, node)
	}

	idx := len(step.Stack) - 1 - stackPos
	if idx < 0 || idx >= len(step.Stack) {
		return nil
	}

	value, ok := parseWord(step.Stack[idx])
	if !ok {
		return nil
	}

	return []*Value{{Type: vtype, Name: name, Value: value, Kind: kind, Origin: origin}}
}

// anonymousName synthesizes a temporary's name from the source text its AST
// node spans.
func (c *Core) anonymousName(step *trace.TraceStep, node *artifact.Node) string {
	start, length, file, err := node.SrcTriple()
	if err != nil {
		return "?"
	}

	source := c.dec.SourceMapper().GetSource(step.UnitName, start, length, file)

	if start < 0 || start+length > len(source.Source) {
		return "?"
	}

	text := source.Source[start : start+length]
	if text == "" {
		return "?"
	}

	return text
}

func (c *Core) searchExpressionStatement(s *Step, stmt *artifact.Node) []*Value {
	target, ok := stmt.AssignmentTarget()
	if !ok {
		return nil
	}

	return c.extractVariable(s.TraceStep, target, 0, "ExpressionStatement")
}

func (c *Core) searchVariableDeclarationStatement(s *Step, stmt *artifact.Node) []*Value {
	decl, ok := stmt.FirstDeclaration()
	if !ok {
		return nil
	}

	return c.extractVariable(s.TraceStep, decl, 0, "VariableDeclarationStatement")
}

// searchFunctionDefinition recovers parameter values at function entry: the
// i-th of n parameters sits n-i-1 words below the stack top.
func (c *Core) searchFunctionDefinition(s *Step, stmt *artifact.Node) *Function {
	if stmt.Name == "" {
		return nil
	}

	params := stmt.Parameters()
	if len(s.TraceStep.Stack) < len(params)+1 {
		return nil
	}

	var values []*Value
	for i, param := range params {
		values = append(values, c.extractVariable(s.TraceStep, param, len(params)-i-1, "FunctionDefinition")...)
	}

	return &Function{Name: stmt.Name, Parameters: values}
}

// searchFunctionReturn recovers return values just before the returning jump:
// the i-th of n return parameters sits n-i words below the stack top, above
// the return address.
func (c *Core) searchFunctionReturn(s *Step, stmt *artifact.Node) *Function {
	if stmt.Name == "" {
		return nil
	}

	params := stmt.ReturnParameters()
	if len(s.TraceStep.Stack) < len(params)+2 {
		return nil
	}

	var values []*Value

	for i, param := range params {
		for _, v := range c.extractVariable(s.TraceStep, param, len(params)-i, "FunctionReturn") {
			v.Kind = KindReturn
			values = append(values, v)
		}
	}

	return &Function{Name: stmt.Name, Parameters: values}
}

// GetStep returns the step at a relative offset within the window; offsets
// outside it report invalid.
func (c *Core) GetStep(offset int) *Step {
	return c.getStepRel(offset)
}

// Frames returns the reconstructed call stack, newest frame first.
func (c *Core) Frames() []*Frame {
	out := make([]*Frame, len(c.frames))
	for i, f := range c.frames {
		out[len(c.frames)-1-i] = f
	}

	return out
}

// Depth returns the number of frames on the reconstructed call stack.
func (c *Core) Depth() int {
	return len(c.frames)
}

// Values merges the selected frame's locals with the current step's
// temporaries; step temporaries shadow locals of the same name.
func (c *Core) Values() map[string]*Value {
	out := map[string]*Value{}

	if len(c.frames) > 0 {
		for name, v := range c.frames[len(c.frames)-1].Locals {
			out[name] = v
		}
	}

	s := c.getStepRel(0)
	for name, v := range s.Values {
		out[name] = v
	}

	return out
}

// parseWord decodes one stack word in hex (with or without 0x prefix) into a
// 256-bit integer.
func parseWord(word string) (*uint256.Int, bool) {
	w := strings.TrimPrefix(strings.TrimPrefix(word, "0x"), "0X")
	w = strings.TrimLeft(w, "0")

	if w == "" {
		return uint256.NewInt(0), true
	}

	v, err := uint256.FromHex("0x" + w)
	if err != nil {
		return nil, false
	}

	return v, true
}
