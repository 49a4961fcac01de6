// Package indexer drives the sync pipeline: one goroutine pulls blocks
// and their results from a CometBFT node, another persists them in order.
package indexer

import (
	"context"

	tmhttp "github.com/tendermint/tendermint/rpc/client/http"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"

	"github.com/Zondax/namadexer/errs"
)

// RPCClient is the node-side surface the pipeline needs. Satisfied by the
// tendermint HTTP client; tests swap in a fake.
type RPCClient interface {
	Block(ctx context.Context, height *int64) (*coretypes.ResultBlock, error)
	BlockResults(ctx context.Context, height *int64) (*coretypes.ResultBlockResults, error)
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
}

// NewClient dials the node's RPC endpoint.
func NewClient(addr string) (RPCClient, error) {
	client, err := tmhttp.New(addr, "/websocket")
	if err != nil {
		return nil, errs.Wrap(errs.Tendermint, err)
	}
	return client, nil
}
