package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
)

func newTestMapper(t *testing.T) *SourceMapper {
	t.Helper()

	artifacts := artifact.NewList()
	require.NoError(t, artifacts.Add(&artifact.Artifact{
		UnitName:     "u",
		ContractName: "C",
		Source:       "ab\ncd\nef",
		SourceList:   []string{"u"},
	}))

	return NewSourceMapper(artifacts)
}

func TestSourceMapperLineLookup(t *testing.T) {
	m := newTestMapper(t)

	tests := []struct {
		name      string
		start     int
		lineIndex int
		lineStart int
		linePos   int
	}{
		{"first line start", 0, 0, 0, 0},
		{"first line middle", 1, 0, 0, 1},
		{"second line start", 3, 1, 3, 0},
		{"second line middle", 4, 1, 3, 1},
		{"third line start", 6, 2, 6, 0},
		{"third line end", 7, 2, 6, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.GetSource("u", tt.start, 1, 0)

			assert.True(t, got.Known)
			assert.Equal(t, "u", got.UnitName)
			assert.Equal(t, tt.lineIndex, got.LineIndex)
			assert.Equal(t, tt.lineStart, got.LineStart)
			assert.Equal(t, tt.linePos, got.LinePos)
			assert.Equal(t, []string{"ab", "cd", "ef"}, got.Lines)
		})
	}
}

func TestSourceMapperNewlineOffset(t *testing.T) {
	m := newTestMapper(t)

	// Offset 2 is the first newline: it resolves to the line it opens, with
	// the column clamped to that line's length.
	got := m.GetSource("u", 2, 1, 0)

	assert.Equal(t, 1, got.LineIndex)
	assert.Equal(t, 2, got.LinePos)
}

func TestSourceMapperNegativeOffsetClamps(t *testing.T) {
	m := newTestMapper(t)

	got := m.GetSource("u", -1, 0, 0)

	assert.Equal(t, 0, got.LineIndex)
	assert.Equal(t, 2, got.LinePos)
}

func TestSourceMapperUnknownFile(t *testing.T) {
	m := newTestMapper(t)

	got := m.GetSource("u", 0, 1, 9)

	assert.False(t, got.Known)
	assert.Empty(t, got.UnitName)
	assert.Empty(t, got.Source)
	assert.Equal(t, 0, got.LineIndex)
}

func TestSourceMapperUnknownUnit(t *testing.T) {
	m := newTestMapper(t)

	got := m.GetSource("nope", 0, 1, 0)

	assert.False(t, got.Known)
}
