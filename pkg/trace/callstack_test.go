package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func step(pc uint64, op string, jump JumpKind) *TraceStep {
	return &TraceStep{PC: pc, Op: op, Jump: jump}
}

func TestCallStackNestedInternalCalls(t *testing.T) {
	cs := NewCallStack()

	kinds := []EventKind{}
	for _, s := range []*TraceStep{
		step(0, "PUSH1", JumpRegular),
		step(1, "JUMP", JumpIn),     // call outer
		step(5, "JUMPDEST", JumpRegular),
		step(6, "JUMP", JumpIn),     // call inner
		step(9, "JUMPDEST", JumpRegular),
		step(10, "JUMP", JumpOut),   // return from inner
		step(7, "JUMPDEST", JumpRegular),
		step(8, "JUMP", JumpOut),    // return from outer
		step(2, "JUMPDEST", JumpRegular),
	} {
		kinds = append(kinds, cs.Add(s).Kind)
	}

	assert.Equal(t, []EventKind{
		EventNone,
		EventNone,
		EventPush,
		EventNone,
		EventPush,
		EventNone,
		EventPop,
		EventNone,
		EventPop,
	}, kinds)

	assert.Equal(t, 0, cs.Depth())
}

func TestCallStackPushCarriesAnchorSteps(t *testing.T) {
	cs := NewCallStack()

	jump := step(1, "JUMP", JumpIn)
	dest := step(5, "JUMPDEST", JumpRegular)

	cs.Add(jump)
	event := cs.Add(dest)

	assert.Equal(t, EventPush, event.Kind)
	assert.Same(t, jump, event.Prev)
	assert.Same(t, dest, event.Step)
}

func TestCallStackExternalCall(t *testing.T) {
	for _, op := range []string{"CALL", "CALLCODE", "DELEGATECALL", "STATICCALL"} {
		t.Run(op, func(t *testing.T) {
			cs := NewCallStack()

			cs.Add(step(3, op, JumpRegular))
			event := cs.Add(step(0, "PUSH1", JumpRegular))
			assert.Equal(t, EventPush, event.Kind)
			assert.Equal(t, 1, cs.Depth())

			cs.Add(step(1, "STOP", JumpRegular))
			event = cs.Add(step(4, "PUSH1", JumpRegular))
			assert.Equal(t, EventPop, event.Kind)
			assert.Equal(t, 0, cs.Depth())
		})
	}
}

func TestCallStackReturnAfterHalt(t *testing.T) {
	cs := NewCallStack()

	cs.Add(step(3, "CALL", JumpRegular))
	cs.Add(step(0, "PUSH1", JumpRegular))
	cs.Add(step(1, "RETURN", JumpRegular))

	event := cs.Add(step(4, "PUSH1", JumpRegular))
	assert.Equal(t, EventPop, event.Kind)
}

func TestCallStackRegularJumpIsNoEvent(t *testing.T) {
	cs := NewCallStack()

	cs.Add(step(1, "JUMP", JumpRegular))
	event := cs.Add(step(5, "JUMPDEST", JumpRegular))

	assert.Equal(t, EventNone, event.Kind)
	assert.Equal(t, 0, cs.Depth())
}

func TestCallStackUnderflowDoesNotPanic(t *testing.T) {
	cs := NewCallStack()

	// Halt at root level with nothing tracked: the pop event is still
	// reported but the root level survives.
	cs.Add(step(0, "STOP", JumpRegular))
	event := cs.Add(step(1, "PUSH1", JumpRegular))

	assert.Equal(t, EventPop, event.Kind)
	assert.Equal(t, 0, cs.Depth())

	// The stack keeps working afterwards.
	cs.Add(step(2, "JUMP", JumpIn))
	event = cs.Add(step(9, "JUMPDEST", JumpRegular))
	assert.Equal(t, EventPush, event.Kind)
}
