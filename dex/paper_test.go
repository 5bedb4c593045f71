package dex

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

func TestPaperSwapAppliesHaircut(t *testing.T) {
	r := NewPaperRouter()

	receipt, err := r.Swap(context.Background(), SwapRequest{
		Chain:       types.ChainPolygon,
		Venue:       types.Venue{Name: "quickswap", Chain: types.ChainPolygon},
		FromAsset:   "USDC",
		ToAsset:     "WETH",
		AmountInUSD: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatal(err)
	}

	// 10bps slippage + 30bps fee off the input
	if !receipt.AmountOut.Equal(decimal.NewFromInt(996)) {
		t.Fatalf("out = %s, want 996", receipt.AmountOut)
	}
	if !receipt.AmountIn.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("in = %s, want 1000", receipt.AmountIn)
	}
	if receipt.TxHash == "" {
		t.Fatal("paper fills must still carry a tx hash")
	}
}

func TestPaperTxHashesAreUnique(t *testing.T) {
	r := NewPaperRouter()
	req := SwapRequest{AmountInUSD: decimal.NewFromInt(100)}

	a, _ := r.Swap(context.Background(), req)
	b, _ := r.Swap(context.Background(), req)
	if a.TxHash == b.TxHash {
		t.Fatalf("duplicate paper tx hash %s", a.TxHash)
	}
}

func TestPaperQuoteMatchesSwap(t *testing.T) {
	r := NewPaperRouter()
	req := SwapRequest{AmountInUSD: decimal.NewFromInt(250)}

	quote, err := r.Quote(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	receipt, err := r.Swap(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !quote.AmountOutUSD.Equal(receipt.AmountOut) {
		t.Fatalf("quote %s != fill %s", quote.AmountOutUSD, receipt.AmountOut)
	}
}
