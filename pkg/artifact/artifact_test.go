package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testList(t *testing.T) *List {
	t.Helper()

	l := NewList()

	for _, a := range []*Artifact{
		{UnitName: "contracts/Token.sol", ContractName: "Token"},
		{UnitName: "contracts/Sale.sol", ContractName: "Sale"},
		{UnitName: "vendor/Token.sol", ContractName: "Token"},
	} {
		require.NoError(t, l.Add(a))
	}

	return l
}

func TestListAddDuplicate(t *testing.T) {
	l := testList(t)

	err := l.Add(&Artifact{UnitName: "contracts/Token.sol", ContractName: "Token"})
	assert.Error(t, err)
}

func TestListKeysPreserveRegistrationOrder(t *testing.T) {
	l := testList(t)

	assert.Equal(t, []Key{
		{UnitName: "contracts/Token.sol", ContractName: "Token"},
		{UnitName: "contracts/Sale.sol", ContractName: "Sale"},
		{UnitName: "vendor/Token.sol", ContractName: "Token"},
	}, l.Keys())
}

func TestListFind(t *testing.T) {
	l := testList(t)

	assert.Len(t, l.Find("", "Token"), 2)
	assert.Equal(t, []Key{{UnitName: "vendor/Token.sol", ContractName: "Token"}}, l.Find("vendor/Token.sol", "Token"))
	assert.Empty(t, l.Find("", "Nope"))
}

func TestListSelect(t *testing.T) {
	l := testList(t)

	a, err := l.Select("Sale")
	require.NoError(t, err)
	assert.Equal(t, "contracts/Sale.sol", a.UnitName)

	a, err = l.Select("vendor/Token.sol:Token")
	require.NoError(t, err)
	assert.Equal(t, "vendor/Token.sol", a.UnitName)

	_, err = l.Select("Token")
	assert.Error(t, err, "ambiguous selector must be rejected")

	_, err = l.Select("Nope")
	assert.Error(t, err)

	_, err = l.Select("contracts/Sale")
	assert.Error(t, err, "contract name must not contain a path")
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	artifact := `{
		"unitName": "contracts/Token.sol",
		"contractName": "Token",
		"source": "contract Token {}",
		"sourceList": ["contracts/Token.sol"],
		"bin": "6001",
		"bin-runtime": "6002",
		"srcmap-runtime": "0:5:0"
	}`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build_Token.json"), []byte(artifact), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("ignored"), 0o644))

	l := NewList()
	require.NoError(t, l.LoadDirectory(dir))

	assert.Equal(t, 1, l.Len())

	a, ok := l.Get("contracts/Token.sol", "Token")
	require.True(t, ok)
	assert.Equal(t, "6002", a.BinRuntime)
	assert.Equal(t, "0:5:0", a.SrcmapRuntime)
}

func TestLoadDirectoryRejectsIncompleteArtifact(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build_x.json"), []byte(`{"unitName": "x.sol"}`), 0o644))

	l := NewList()
	assert.Error(t, l.LoadDirectory(dir))
}

func TestLoadDirectoryMissing(t *testing.T) {
	l := NewList()
	assert.Error(t, l.LoadDirectory(filepath.Join(t.TempDir(), "missing")))
}

func TestBytecodeDecoding(t *testing.T) {
	a := &Artifact{UnitName: "x.sol", ContractName: "X", Bin: "0x6001", BinRuntime: "6002"}

	creation, err := a.CreationBytecode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, creation)

	runtime, err := a.RuntimeBytecode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x02}, runtime)

	a.Bin = "zz"
	_, err = a.CreationBytecode()
	assert.Error(t, err)
}
