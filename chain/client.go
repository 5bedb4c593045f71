package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAIN CLIENT - RPC abstraction consumed by funding, saga and engine
// ═══════════════════════════════════════════════════════════════════════════════

// Client is the chain access surface the trading core depends on.
// Implementations own the wire-level RPC details.
type Client interface {
	// Chain returns the network this client talks to
	Chain() types.Chain

	// NativeBalanceUSD returns the wallet's native-asset balance in USD
	NativeBalanceUSD(ctx context.Context, wallet common.Address) (decimal.Decimal, error)

	// AssetBalancesUSD returns per-asset USD balances for a wallet
	AssetBalancesUSD(ctx context.Context, wallet common.Address) (map[string]decimal.Decimal, error)

	// GasPriceGwei returns the current suggested gas price in gwei
	GasPriceGwei(ctx context.Context) (decimal.Decimal, error)

	// SubmitSignedTx broadcasts an already-signed transaction
	SubmitSignedTx(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error)

	// WaitForReceipt blocks until the tx is mined or ctx expires
	WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Keyring signs transactions. The core never sees raw key material.
type Keyring interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}
