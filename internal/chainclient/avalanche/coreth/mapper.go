package coreth

import (
	"math/big"

	"github.com/ava-labs/coreth/plugin/evm/customtypes"
	libevmtypes "github.com/ava-labs/libevm/core/types"

	"github.com/ava-labs/rewards-follower/pkg/ledger"
)

// FeeKind labels the reward credited to a block's coinbase.
const FeeKind = "fees"

// evmBlock holds the fields of a C-Chain block that feed the ledger.
type evmBlock struct {
	number       uint64
	hash         string
	parentHash   string
	time         int64
	coinbase     string
	gasUsed      uint64
	baseFee      *big.Int
	blockGasCost *big.Int
}

func fromBlock(block *libevmtypes.Block) evmBlock {
	extra := customtypes.GetHeaderExtra(block.Header())
	return evmBlock{
		number:       block.NumberU64(),
		hash:         block.Hash().Hex(),
		parentHash:   block.ParentHash().Hex(),
		time:         int64(block.Time()),
		coinbase:     block.Coinbase().Hex(),
		gasUsed:      block.GasUsed(),
		baseFee:      block.BaseFee(),
		blockGasCost: extra.BlockGasCost,
	}
}

// fees is gasUsed * baseFee plus the block gas cost. Pre-London blocks have
// no base fee and contribute only the block gas cost.
func (b evmBlock) fees() *big.Int {
	total := new(big.Int)
	if b.baseFee != nil {
		total.Mul(new(big.Int).SetUint64(b.gasUsed), b.baseFee)
	}
	if b.blockGasCost != nil {
		total.Add(total, b.blockGasCost)
	}
	return total
}

func (b evmBlock) record() ledger.Record {
	rec := ledger.Record{
		Position: ledger.Position{Height: b.number, Hash: b.hash},
		Time:     b.time,
	}
	if b.number > 0 {
		rec.Parent = ledger.Position{Height: b.number - 1, Hash: b.parentHash}
	}
	if fees := b.fees(); fees.Sign() > 0 {
		rec.Payload.Rewards = []ledger.RewardEntry{{
			Participant: b.coinbase,
			Kind:        FeeKind,
			Amount:      ledger.AmountFromBig(fees),
		}}
	}
	return rec
}
