package trace

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/0xsequence/ethkit/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/tracedbg/pkg/artifact"
	"github.com/ethpandaops/tracedbg/pkg/common"
	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
)

// ChainReader is the slice of the execution node the identifier needs.
type ChainReader interface {
	Name() string
	BlockNumber(ctx context.Context) (*uint64, error)
	BlockByNumber(ctx context.Context, blockNumber *big.Int) (*types.Block, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*execution.TransactionReceipt, error)
}

// ContractID names a compiled contract by unit and contract name.
type ContractID struct {
	UnitName     string
	ContractName string
}

type creationCandidate struct {
	id       ContractID
	bytecode []byte
}

// ContractIdentifier resolves deployed contract addresses to compiled contract
// identities. Entries come from a one-time scan of the chain's deployment
// history, from manual registration, or both.
type ContractIdentifier struct {
	log       logrus.FieldLogger
	byAddress map[string]ContractID
}

func NewContractIdentifier(log logrus.FieldLogger) *ContractIdentifier {
	return &ContractIdentifier{
		log:       log.WithField("component", "trace/identifier"),
		byAddress: map[string]ContractID{},
	}
}

// Register maps a deployed address to a contract identity, overriding any
// entry the chain scan produced for it.
func (ci *ContractIdentifier) Register(address string, id ContractID) {
	ci.byAddress[normalizeAddress(address)] = id
}

// ScanChain scans every block from genesis to the current head. For each
// transaction with non-trivial input whose receipt names a created contract
// address, the candidate whose creation bytecode is the longest byte-for-byte
// prefix of the transaction input is selected. Ties on equal maximal length
// fall to the first registered candidate; that tie-break is an observed
// ambiguity, not a guarantee. Contracts created after the scan are not
// observed.
func (ci *ContractIdentifier) ScanChain(ctx context.Context, reader ChainReader, artifacts *artifact.List) error {
	candidates, err := creationCandidates(artifacts)
	if err != nil {
		return err
	}

	head, err := reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch head block number: %w", err)
	}

	start := time.Now()

	for n := uint64(0); n <= *head; n++ {
		if err := ci.scanBlock(ctx, reader, candidates, n); err != nil {
			return err
		}

		common.ChainScanBlocks.WithLabelValues(reader.Name()).Inc()
	}

	common.ChainScanDuration.WithLabelValues(reader.Name()).Observe(time.Since(start).Seconds())

	ci.log.WithFields(logrus.Fields{
		"blocks":    *head + 1,
		"contracts": len(ci.byAddress),
	}).Info("Deployment history scan complete")

	return nil
}

// Lookup resolves a deployed address to its contract identity.
func (ci *ContractIdentifier) Lookup(address string) (ContractID, bool) {
	id, ok := ci.byAddress[normalizeAddress(address)]

	return id, ok
}

func (ci *ContractIdentifier) scanBlock(ctx context.Context, reader ChainReader, candidates []creationCandidate, number uint64) error {
	block, err := reader.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", number, err)
	}

	type deployment struct {
		address string
		id      ContractID
		found   bool
	}

	txs := block.Transactions()
	results := make([]deployment, len(txs))

	// Receipts within one block are fetched concurrently; the scan as a whole
	// stays blocking.
	g, gctx := errgroup.WithContext(ctx)

	for i, tx := range txs {
		input := tx.Data()
		if len(input) <= 1 {
			continue
		}

		g.Go(func() error {
			receipt, err := reader.GetTransactionReceipt(gctx, tx.Hash().Hex())
			if err != nil {
				return fmt.Errorf("failed to fetch receipt for %s: %w", tx.Hash().Hex(), err)
			}

			if receipt == nil || receipt.ContractAddress == nil || *receipt.ContractAddress == "" {
				return nil
			}

			id, found := searchContract(candidates, input)

			results[i] = deployment{address: *receipt.ContractAddress, id: id, found: found}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.address == "" {
			continue
		}

		if !r.found {
			ci.log.WithField("address", r.address).Debug("Created contract does not match any known artifact")

			continue
		}

		ci.byAddress[normalizeAddress(r.address)] = r.id
	}

	return nil
}

// searchContract returns the candidate whose creation bytecode is the longest
// prefix of the deployment input.
func searchContract(candidates []creationCandidate, input []byte) (ContractID, bool) {
	matchLength := 0
	match := ContractID{}
	found := false

	for _, c := range candidates {
		if len(c.bytecode) > matchLength && bytes.HasPrefix(input, c.bytecode) {
			matchLength = len(c.bytecode)
			match = c.id
			found = true
		}
	}

	return match, found
}

func creationCandidates(artifacts *artifact.List) ([]creationCandidate, error) {
	out := make([]creationCandidate, 0, artifacts.Len())

	for _, key := range artifacts.Keys() {
		a, _ := artifacts.Get(key.UnitName, key.ContractName)

		bytecode, err := a.CreationBytecode()
		if err != nil {
			return nil, err
		}

		if len(bytecode) == 0 {
			continue
		}

		out = append(out, creationCandidate{
			id:       ContractID{UnitName: key.UnitName, ContractName: key.ContractName},
			bytecode: bytecode,
		})
	}

	return out, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimPrefix(address, "0x"))
}
