package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSourceMapInheritance(t *testing.T) {
	mappings, err := DecodeSourceMap("1:2:0:i;;3::1")
	require.NoError(t, err)

	assert.Equal(t, []Mapping{
		{Start: 1, Length: 2, File: 0, Jump: JumpIn},
		{Start: 1, Length: 2, File: 0, Jump: JumpIn},
		{Start: 3, Length: 2, File: 1, Jump: JumpIn},
	}, mappings)
}

func TestDecodeSourceMapInheritsTrailingFields(t *testing.T) {
	mappings, err := DecodeSourceMap("1:2:0:i;5")
	require.NoError(t, err)

	assert.Equal(t, []Mapping{
		{Start: 1, Length: 2, File: 0, Jump: JumpIn},
		{Start: 5, Length: 2, File: 0, Jump: JumpIn},
	}, mappings)
}

func TestDecodeSourceMapNegativeFields(t *testing.T) {
	mappings, err := DecodeSourceMap("-1:-1:-1:-;0:5:0")
	require.NoError(t, err)

	assert.Equal(t, Mapping{Start: -1, Length: -1, File: -1, Jump: JumpRegular}, mappings[0])
	assert.Equal(t, Mapping{Start: 0, Length: 5, File: -1, Jump: JumpRegular}, mappings[1])
}

func TestDecodeSourceMapMalformed(t *testing.T) {
	for _, srcmap := range []string{"x:1:2", "1:y", "1:2:z", "1:2:0:i;q"} {
		_, err := DecodeSourceMap(srcmap)
		assert.Error(t, err, "srcmap %q", srcmap)
	}
}

func TestEncodeSourceMapMinimal(t *testing.T) {
	encoded := EncodeSourceMap([]Mapping{
		{Start: 1, Length: 2, File: 0, Jump: JumpIn},
		{Start: 1, Length: 2, File: 0, Jump: JumpIn},
		{Start: 3, Length: 2, File: 1, Jump: JumpIn},
	})

	assert.Equal(t, "1:2:0:i;;3:2:1", encoded)
}

func TestSourceMapRoundTrip(t *testing.T) {
	original := []Mapping{
		{Start: 0, Length: 100, File: 0, Jump: JumpRegular},
		{Start: 0, Length: 100, File: 0, Jump: JumpRegular},
		{Start: 10, Length: 5, File: 0, Jump: JumpIn},
		{Start: 10, Length: 5, File: 0, Jump: JumpOut},
		{Start: -1, Length: -1, File: -1, Jump: JumpRegular},
		{Start: 7, Length: 5, File: 1, Jump: JumpRegular},
		{Start: 7, Length: 3, File: 1, Jump: JumpRegular},
	}

	decoded, err := DecodeSourceMap(EncodeSourceMap(original))
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
}
