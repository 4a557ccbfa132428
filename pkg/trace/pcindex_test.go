package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractDecoderSingleByteOps(t *testing.T) {
	// Four single-byte instructions: pc equals instruction number.
	dec, err := NewContractDecoder([]byte{0x01, 0x02, 0x5b, 0x00}, "0:1:0;10:2:0;20:3:0;30:4:0")
	require.NoError(t, err)

	assert.Equal(t, 4, dec.InstructionCount())
	assert.Equal(t, 0, dec.GetMapping(0).Start)
	assert.Equal(t, 10, dec.GetMapping(1).Start)
	assert.Equal(t, 20, dec.GetMapping(2).Start)
	assert.Equal(t, 30, dec.GetMapping(3).Start)
}

func TestContractDecoderPushPayload(t *testing.T) {
	// PUSH1 0xAA; ADD; PUSH2 0xBB 0xCC; STOP
	bytecode := []byte{0x60, 0xAA, 0x01, 0x61, 0xBB, 0xCC, 0x00}

	dec, err := NewContractDecoder(bytecode, "0:1:0;10:2:0;20:3:0;30:4:0")
	require.NoError(t, err)

	assert.Equal(t, 4, dec.InstructionCount())

	// Immediate bytes share their instruction's mapping.
	assert.Equal(t, 0, dec.GetMapping(0).Start)
	assert.Equal(t, 0, dec.GetMapping(1).Start)
	assert.Equal(t, 10, dec.GetMapping(2).Start)
	assert.Equal(t, 20, dec.GetMapping(3).Start)
	assert.Equal(t, 20, dec.GetMapping(4).Start)
	assert.Equal(t, 20, dec.GetMapping(5).Start)
	assert.Equal(t, 30, dec.GetMapping(6).Start)
}

func TestContractDecoderOutOfRange(t *testing.T) {
	dec, err := NewContractDecoder([]byte{0x00, 0x00}, "5:1:0")
	require.NoError(t, err)

	// Past the bytecode.
	assert.Equal(t, sentinelMapping, dec.GetMapping(100))

	// Within the bytecode but past the source map.
	assert.Equal(t, sentinelMapping, dec.GetMapping(1))
}

func TestContractDecoderTruncatedPush(t *testing.T) {
	// PUSH2 with a single immediate byte at the end of the code.
	dec, err := NewContractDecoder([]byte{0x61, 0xAA}, "0:1:0")
	require.NoError(t, err)

	assert.Equal(t, 1, dec.InstructionCount())
	assert.Equal(t, 0, dec.GetMapping(1).Start)
}

func TestPassthroughDecoder(t *testing.T) {
	assert.Equal(t, sentinelMapping, PassthroughDecoder{}.GetMapping(0))
	assert.Equal(t, sentinelMapping, PassthroughDecoder{}.GetMapping(12345))
}
