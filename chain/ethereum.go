package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVM CLIENT - go-ethereum backed implementation of Client
// ═══════════════════════════════════════════════════════════════════════════════

var weiPerEth = decimal.New(1, 18)

// EthClient talks to one EVM chain over JSON-RPC
type EthClient struct {
	chain     types.Chain
	rpc       *ethclient.Client
	retry     *RetryPolicy
	nonces    *NonceManager
	nativeUSD func() decimal.Decimal // native asset spot price feed
	pollEvery time.Duration
}

// NewEthClient dials an EVM RPC endpoint
func NewEthClient(chain types.Chain, rpcURL string, wallet common.Address, nativeUSD func() decimal.Decimal) (*EthClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chain, err)
	}

	log.Info().
		Str("chain", string(chain)).
		Str("class", string(chain.Class())).
		Msg("⛓️ Chain client connected")

	return &EthClient{
		chain:     chain,
		rpc:       rpc,
		retry:     DefaultRetryPolicy(),
		nonces:    NewNonceManager(chain, wallet, rpc),
		nativeUSD: nativeUSD,
		pollEvery: 2 * time.Second,
	}, nil
}

// NextNonce issues the nonce for the next transaction built against this
// chain. Venue router integrations call this when encoding calldata.
func (c *EthClient) NextNonce(ctx context.Context) (uint64, error) {
	return c.nonces.Next(ctx)
}

// Chain returns the network this client talks to
func (c *EthClient) Chain() types.Chain {
	return c.chain
}

// NativeBalanceUSD returns the wallet's native balance converted to USD
func (c *EthClient) NativeBalanceUSD(ctx context.Context, wallet common.Address) (decimal.Decimal, error) {
	var wei *big.Int
	err := c.retry.Do(ctx, "balance_at", func() error {
		var err error
		wei, err = c.rpc.BalanceAt(ctx, wallet, nil)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", c.chain, err)
	}

	native := decimal.NewFromBigInt(wei, 0).Div(weiPerEth)
	return native.Mul(c.nativeUSD()), nil
}

// AssetBalancesUSD returns per-asset USD balances. The native asset is read
// on-chain; token balances come from the configured token list.
//
// TODO: read ERC-20 balances via a multicall batch instead of native-only.
func (c *EthClient) AssetBalancesUSD(ctx context.Context, wallet common.Address) (map[string]decimal.Decimal, error) {
	nativeUSD, err := c.NativeBalanceUSD(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return map[string]decimal.Decimal{"NATIVE": nativeUSD}, nil
}

// GasPriceGwei returns the suggested gas price in gwei
func (c *EthClient) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	var wei *big.Int
	err := c.retry.Do(ctx, "gas_price", func() error {
		var err error
		wei, err = c.rpc.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("gas price %s: %w", c.chain, err)
	}
	return decimal.NewFromBigInt(wei, 0).Div(decimal.New(1, 9)), nil
}

// SubmitSignedTx broadcasts a signed transaction
func (c *EthClient) SubmitSignedTx(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	err := c.retry.Do(ctx, "send_tx", func() error {
		return c.rpc.SendTransaction(ctx, tx)
	})
	if err != nil {
		// The chain's view of the wallet nonce is unknown now
		c.nonces.Invalidate()
		return common.Hash{}, fmt.Errorf("submit tx %s: %w", c.chain, err)
	}

	log.Debug().
		Str("chain", string(c.chain)).
		Str("tx", tx.Hash().Hex()).
		Msg("📤 Transaction submitted")

	return tx.Hash(), nil
}

// WaitForReceipt polls for the receipt until mined or ctx expires
func (c *EthClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
