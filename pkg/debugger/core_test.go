package debugger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tracedbg/internal/testutil"
	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
	"github.com/ethpandaops/tracedbg/pkg/trace"
)

// newTestCore builds a debugging core over the Adder fixture trace. Custom
// instruction logs may be passed to vary the run; nil uses the canonical one.
func newTestCore(t *testing.T, logs []execution.StructLog) (*Core, *testutil.AdderFixture) {
	t.Helper()

	fix := testutil.NewAdderFixture(t)

	artifacts := artifact.NewList()
	require.NoError(t, artifacts.Add(fix.Artifact))

	astIndex, err := artifact.BuildSourceIndex(artifacts)
	require.NoError(t, err)

	identifier := trace.NewContractIdentifier(testutil.NewLogger())
	identifier.Register(testutil.AdderAddress, fix.ID())

	if logs == nil {
		logs = fix.StructLogs()
	}

	to := testutil.AdderAddress
	source := &testutil.StaticSource{
		Tx:   &execution.Transaction{Hash: "0xabc", To: &to},
		Logs: logs,
	}

	decoder := trace.NewDecoder(testutil.NewLogger(), source, artifacts, identifier)

	core, err := NewCore(context.Background(), testutil.NewLogger(), decoder, astIndex, "0xabc", 50)
	require.NoError(t, err)

	return core, fix
}

// newCountdownCore builds a debugging core over the recursive Countdown
// fixture trace.
func newCountdownCore(t *testing.T) (*Core, *testutil.CountdownFixture) {
	t.Helper()

	fix := testutil.NewCountdownFixture(t)

	artifacts := artifact.NewList()
	require.NoError(t, artifacts.Add(fix.Artifact))

	astIndex, err := artifact.BuildSourceIndex(artifacts)
	require.NoError(t, err)

	identifier := trace.NewContractIdentifier(testutil.NewLogger())
	identifier.Register(testutil.CountdownAddress, fix.ID())

	to := testutil.CountdownAddress
	source := &testutil.StaticSource{
		Tx:   &execution.Transaction{Hash: "0xdef", To: &to},
		Logs: fix.StructLogs(),
	}

	decoder := trace.NewDecoder(testutil.NewLogger(), source, artifacts, identifier)

	core, err := NewCore(context.Background(), testutil.NewLogger(), decoder, astIndex, "0xdef", 50)
	require.NoError(t, err)

	return core, fix
}

func advance(c *Core, n int) {
	for i := 0; i < n; i++ {
		c.Step()
	}
}

func local(t *testing.T, c *Core, name string) *Value {
	t.Helper()

	frames := c.Frames()
	require.NotEmpty(t, frames)

	v, ok := frames[0].Locals[name]
	require.True(t, ok, "expected local %q", name)

	return v
}

func TestCoreInitialState(t *testing.T) {
	c, _ := newTestCore(t, nil)

	s := c.GetStep(0)
	require.True(t, s.Valid())
	assert.Equal(t, uint64(0), s.TraceStep.PC)

	// A synthetic root frame spans the whole transaction.
	assert.Equal(t, 1, c.Depth())
}

func TestCoreRecoversMsgValue(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 1)
	require.Equal(t, "CALLVALUE", c.GetStep(0).TraceStep.Op)

	v := local(t, c, "msg.value")
	assert.Equal(t, uint64(5), v.Value.Uint64())
	assert.Equal(t, "uint256", v.Type)
	assert.Equal(t, KindVariable, v.Kind)
}

func TestCoreFunctionEntry(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 4)
	require.Equal(t, uint64(8), c.GetStep(0).TraceStep.PC)

	// The jump into add pushed a frame and the entry heuristics recognized
	// the function and its parameters.
	assert.Equal(t, 2, c.Depth())

	frames := c.Frames()
	require.NotNil(t, frames[0].Function)
	assert.Equal(t, "add", frames[0].Function.Name)

	assert.Equal(t, uint64(2), local(t, c, "a").Value.Uint64())
	assert.Equal(t, uint64(3), local(t, c, "b").Value.Uint64())
}

func TestCoreRecoversDeclaredVariable(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 5)

	v := local(t, c, "c")
	assert.Equal(t, uint64(5), v.Value.Uint64())
	assert.Equal(t, "VariableDeclarationStatement", v.Origin)
}

func TestCoreRecoversAssignment(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 6)

	v := local(t, c, "r")
	assert.Equal(t, uint64(5), v.Value.Uint64())
	assert.Equal(t, "ExpressionStatement", v.Origin)
}

func TestCoreRecoversReturnValues(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 7)
	require.Equal(t, "JUMP", c.GetStep(0).TraceStep.Op)

	frames := c.Frames()
	require.Len(t, frames[0].ReturnValues, 1)

	v := frames[0].ReturnValues[0]
	assert.Equal(t, "r", v.Name)
	assert.Equal(t, uint64(5), v.Value.Uint64())
	assert.Equal(t, KindReturn, v.Kind)
}

func TestCoreFramePopOnReturn(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 8)
	require.Equal(t, uint64(4), c.GetStep(0).TraceStep.PC)

	assert.Equal(t, 1, c.Depth())
}

func TestCoreValuesMergeFrameAndStep(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 6)

	values := c.Values()
	assert.Contains(t, values, "a")
	assert.Contains(t, values, "b")
	assert.Contains(t, values, "c")
	assert.Contains(t, values, "r")

	// msg.value lives in the root frame, not the current one.
	assert.NotContains(t, values, "msg.value")
}

func TestCoreRecursionDepth(t *testing.T) {
	c, _ := newCountdownCore(t)

	maxDepth := c.Depth()

	for c.GetStep(0).Valid() {
		c.Step()

		if d := c.Depth(); d > maxDepth {
			maxDepth = d
		}
	}

	// The root frame plus one frame per activation of down.
	assert.Equal(t, 1+testutil.CountdownRecursionDepth, maxDepth)

	// Every activation returned, so only the root frame survives.
	assert.Equal(t, 1, c.Depth())
}

func TestCoreRecursiveFrameParameters(t *testing.T) {
	c, _ := newCountdownCore(t)

	// Advance to the innermost activation's entry.
	for c.GetStep(0).Valid() && c.Depth() < 1+testutil.CountdownRecursionDepth {
		c.Step()
	}

	require.Equal(t, 1+testutil.CountdownRecursionDepth, c.Depth())

	// Each activation carries its own recognized function with its own
	// argument, innermost first.
	frames := c.Frames()

	for idx, want := range []uint64{0, 1, 2} {
		require.NotNil(t, frames[idx].Function, "frame %d", idx)
		assert.Equal(t, "down", frames[idx].Function.Name)

		require.Len(t, frames[idx].Function.Parameters, 1)
		assert.Equal(t, "n", frames[idx].Function.Parameters[0].Name)
		assert.Equal(t, want, frames[idx].Function.Parameters[0].Value.Uint64(), "frame %d", idx)
	}

	require.Nil(t, frames[testutil.CountdownRecursionDepth].Function)
}

func TestCoreRecursiveReturnValues(t *testing.T) {
	c, _ := newCountdownCore(t)

	returns := 0

	for c.GetStep(0).Valid() {
		c.Step()

		s := c.GetStep(0)
		if !s.Valid() || s.TraceStep.Jump != trace.JumpOut {
			continue
		}

		// At every returning jump the unwinding activation holds exactly its
		// own recovered return value.
		frames := c.Frames()
		require.NotEmpty(t, frames)
		require.Len(t, frames[0].ReturnValues, 1, "return %d", returns)
		assert.Equal(t, "v", frames[0].ReturnValues[0].Name)
		assert.Equal(t, uint64(0), frames[0].ReturnValues[0].Value.Uint64())

		returns++
	}

	assert.Equal(t, testutil.CountdownRecursionDepth, returns)
}

func TestCoreTraceExhaustion(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 10)
	assert.False(t, c.GetStep(0).Valid())

	// Stepping past the end stays a no-op.
	advance(c, 3)
	assert.False(t, c.GetStep(0).Valid())
	assert.Equal(t, 1, c.Depth())
}

func TestCoreWindowLookAround(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 2)

	assert.Equal(t, uint64(1), c.GetStep(-1).TraceStep.PC)
	assert.Equal(t, uint64(3), c.GetStep(1).TraceStep.PC)

	// Offsets beyond the window report invalid.
	assert.False(t, c.GetStep(1000).Valid())
	assert.False(t, c.GetStep(-1000).Valid())
}

func TestCoreAnonymousTemporaryName(t *testing.T) {
	c, _ := newTestCore(t, nil)

	advance(c, 5)

	span := testutil.Span(t, testutil.AdderSource, "a + b")
	node := &artifact.Node{Src: span.Src()}

	values := c.extractVariable(c.GetStep(0).TraceStep, node, 0, "test")
	require.Len(t, values, 1)

	assert.Equal(t, KindTemporary, values[0].Kind)
	assert.Equal(t, "a + b", values[0].Name)
	assert.Equal(t, "T?", values[0].Type)
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		word string
		want uint64
		ok   bool
	}{
		{"0x0", 0, true},
		{"0x", 0, true},
		{"0x5", 5, true},
		{"0x000010", 16, true},
		{"ff", 255, true},
		{"0xzz", 0, false},
	}

	for _, tt := range tests {
		v, ok := parseWord(tt.word)

		require.Equal(t, tt.ok, ok, "word %q", tt.word)

		if ok {
			assert.Equal(t, tt.want, v.Uint64(), "word %q", tt.word)
		}
	}
}
