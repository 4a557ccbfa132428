// Package artifact loads compiled contract artifacts: bytecode, compressed
// source maps, raw sources and the compiler AST. Artifacts are produced by an
// external compiler wrapper; this package only reads them.
package artifact

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is one compiled contract as emitted by the build step.
type Artifact struct {
	UnitName     string   `json:"unitName"`
	ContractName string   `json:"contractName"`
	SourcePath   string   `json:"sourcePath"`
	Source       string   `json:"source"`
	SourceList   []string `json:"sourceList"`

	// Bin is the creation bytecode, BinRuntime the deployed bytecode, both hex
	// without 0x prefix. Srcmap/SrcmapRuntime are the corresponding compressed
	// source maps.
	Bin           string `json:"bin"`
	BinRuntime    string `json:"bin-runtime"`
	Srcmap        string `json:"srcmap"`
	SrcmapRuntime string `json:"srcmap-runtime"`

	AST json.RawMessage `json:"ast"`
}

// CreationBytecode decodes the creation bytecode.
func (a *Artifact) CreationBytecode() ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(a.Bin, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid creation bytecode for %s:%s: %w", a.UnitName, a.ContractName, err)
	}

	return b, nil
}

// RuntimeBytecode decodes the deployed bytecode.
func (a *Artifact) RuntimeBytecode() ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(a.BinRuntime, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid runtime bytecode for %s:%s: %w", a.UnitName, a.ContractName, err)
	}

	return b, nil
}

// Key identifies a contract by compilation unit and contract name.
type Key struct {
	UnitName     string
	ContractName string
}

// List is an immutable-after-load collection of artifacts. Registration
// order is preserved: identity resolution tie-breaks on it.
type List struct {
	contracts   map[Key]*Artifact
	keys        []Key
	nameToUnits map[string][]string
}

func NewList() *List {
	return &List{
		contracts:   map[Key]*Artifact{},
		nameToUnits: map[string][]string{},
	}
}

// Add registers an artifact. Duplicate unit/contract pairs are an error.
func (l *List) Add(a *Artifact) error {
	key := Key{UnitName: a.UnitName, ContractName: a.ContractName}
	if _, ok := l.contracts[key]; ok {
		return fmt.Errorf("duplicate contract identifier %s:%s", a.UnitName, a.ContractName)
	}

	l.contracts[key] = a
	l.keys = append(l.keys, key)
	l.nameToUnits[a.ContractName] = append(l.nameToUnits[a.ContractName], a.UnitName)

	return nil
}

// Keys returns every artifact key in registration order.
func (l *List) Keys() []Key {
	out := make([]Key, len(l.keys))
	copy(out, l.keys)

	return out
}

// LoadDirectory loads every build_*.json artifact from a directory.
func (l *List) LoadDirectory(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "build_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", name, err)
		}

		a := &Artifact{}
		if err := json.Unmarshal(data, a); err != nil {
			return fmt.Errorf("failed to parse artifact %s: %w", name, err)
		}

		if a.UnitName == "" || a.ContractName == "" {
			return fmt.Errorf("artifact %s is missing unitName or contractName", name)
		}

		if err := l.Add(a); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the artifact for a unit/contract pair.
func (l *List) Get(unitName, contractName string) (*Artifact, bool) {
	a, ok := l.contracts[Key{UnitName: unitName, ContractName: contractName}]

	return a, ok
}

// Find returns all unit/contract pairs with the given contract name whose
// unit name ends with suffix. An empty suffix matches every unit.
func (l *List) Find(suffix, contractName string) []Key {
	var out []Key

	for _, unit := range l.nameToUnits[contractName] {
		if suffix == "" || strings.HasSuffix(unit, suffix) {
			out = append(out, Key{UnitName: unit, ContractName: contractName})
		}
	}

	return out
}

// Select resolves a contract selector of the form "unitsuffix:Name" or "Name".
// It is an error when the selector matches zero or multiple contracts.
func (l *List) Select(selector string) (*Artifact, error) {
	suffix, contractName := "", selector
	if idx := strings.LastIndex(selector, ":"); idx >= 0 {
		suffix, contractName = selector[:idx], selector[idx+1:]
	}

	if strings.Contains(contractName, "/") {
		return nil, fmt.Errorf("invalid contract selector %q: expected 'path/suffix:Name' or 'Name'", selector)
	}

	keys := l.Find(suffix, contractName)

	switch len(keys) {
	case 0:
		return nil, fmt.Errorf("contract %q not found", selector)
	case 1:
		return l.contracts[keys[0]], nil
	default:
		return nil, fmt.Errorf("contract selector %q matched %d contracts", selector, len(keys))
	}
}

// All iterates every artifact. Iteration order is not specified.
func (l *List) All() map[Key]*Artifact {
	out := make(map[Key]*Artifact, len(l.contracts))
	for k, v := range l.contracts {
		out[k] = v
	}

	return out
}

// Len returns the number of loaded artifacts.
func (l *List) Len() int {
	return len(l.contracts)
}
