package trace

import "strings"

// EventKind classifies the call-stack transition detected between two
// consecutive steps.
type EventKind int

const (
	EventNone EventKind = iota
	EventPush
	EventPop
)

func (k EventKind) String() string {
	switch k {
	case EventPush:
		return "push"
	case EventPop:
		return "pop"
	default:
		return "none"
	}
}

// CallStackEvent is emitted alongside each decoded step. Push events carry
// the (previous, current) step pair anchoring the new frame.
type CallStackEvent struct {
	Kind EventKind
	Prev *TraceStep
	Step *TraceStep
}

type callElement struct {
	prev *TraceStep
	step *TraceStep
}

// CallStack reconstructs internal (same-contract jump) and external (message
// call) stack transitions from opcode patterns alone. Detection is best
// effort: hand-written jumps or delegate calls performed via inline assembly
// can desynchronize it, which callers must tolerate.
type CallStack struct {
	// levels holds one slice of internal-call elements per external call level.
	levels   [][]callElement
	prevStep *TraceStep
}

func NewCallStack() *CallStack {
	return &CallStack{levels: [][]callElement{{}}}
}

func isCallOp(op string) bool {
	switch op {
	case "CALL", "CALLCODE", "DELEGATECALL", "STATICCALL":
		return true
	default:
		return false
	}
}

func isHaltOp(op string) bool {
	return op == "STOP" || op == "RETURN"
}

// Add consumes one step and classifies it against the immediately preceding
// one. Return addresses are recognized as the call-site program counter plus
// one; jumps into a function carry the 'i' jump classification.
func (c *CallStack) Add(step *TraceStep) CallStackEvent {
	event := CallStackEvent{Kind: EventNone}

	var prevOp string
	if c.prevStep != nil {
		prevOp = strings.ToUpper(c.prevStep.Op)
	}

	op := strings.ToUpper(step.Op)

	switch {
	case op == "JUMPDEST" && prevOp == "JUMP":
		level := c.levels[len(c.levels)-1]

		if len(level) > 0 && step.PC == level[len(level)-1].prev.PC+1 {
			c.levels[len(c.levels)-1] = level[:len(level)-1]
			event = CallStackEvent{Kind: EventPop}
		} else if c.prevStep.Jump == JumpIn {
			event = CallStackEvent{Kind: EventPush, Prev: c.prevStep, Step: step}
			c.levels[len(c.levels)-1] = append(level, callElement{prev: c.prevStep, step: step})
		}
	case step.PC == 0 && isCallOp(prevOp):
		event = CallStackEvent{Kind: EventPush, Prev: c.prevStep, Step: step}
		c.levels = append(c.levels, []callElement{{prev: c.prevStep, step: step}})
	case isHaltOp(prevOp):
		event = CallStackEvent{Kind: EventPop}

		// An unbalanced trace (abnormal termination, undetected delegate
		// call) must not underflow the root level.
		if len(c.levels) > 1 {
			c.levels = c.levels[:len(c.levels)-1]
		} else {
			c.levels[0] = nil
		}
	}

	c.prevStep = step

	return event
}

// Depth returns the number of tracked call elements across all levels.
func (c *CallStack) Depth() int {
	n := 0
	for _, level := range c.levels {
		n += len(level)
	}

	return n
}
