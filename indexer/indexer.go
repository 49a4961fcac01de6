package indexer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/Zondax/namadexer/checksums"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/metrics"
)

var log = logrus.WithField("module", "indexer")

const (
	// Blocks buffered between the producer and the consumer.
	blockQueueSize = 100

	// Wait before asking again when the node answered that a height does
	// not exist yet.
	rpcRetryWait = 10 * time.Second
)

// BlockSaver is the persistence surface the pipeline needs. Satisfied by
// db.Database; tests swap in a fake.
type BlockSaver interface {
	SaveBlock(ctx context.Context, block *tmtypes.Block, results *coretypes.ResultBlockResults, sums checksums.Map) error
	LastHeight(ctx context.Context) (int64, error)
	HasIndexes(ctx context.Context) (bool, error)
	CreateIndexes(ctx context.Context) error
}

type bundle struct {
	block   *tmtypes.Block
	results *coretypes.ResultBlockResults
}

// Indexer pulls blocks from the node and persists them in height order.
type Indexer struct {
	client  RPCClient
	saver   BlockSaver
	sums    checksums.Map
	metrics *metrics.Metrics

	// createIndex enables building the query indexes once the initial
	// sync catches up with the chain tip.
	createIndex bool

	shutdown atomic.Bool
}

func New(client RPCClient, saver BlockSaver, sums checksums.Map, m *metrics.Metrics, createIndex bool) *Indexer {
	return &Indexer{
		client:      client,
		saver:       saver,
		sums:        sums,
		metrics:     m,
		createIndex: createIndex,
	}
}

// Stop asks both pipeline goroutines to wind down after the block they
// are working on.
func (x *Indexer) Stop() { x.shutdown.Store(true) }

// Run syncs from the height after the last saved block until the context
// is cancelled or Stop is called. A failed save is fatal: resuming past a
// hole would corrupt the wrapper pairing of later blocks.
func (x *Indexer) Run(ctx context.Context) error {
	last, err := x.saver.LastHeight(ctx)
	if err != nil {
		return err
	}
	start := last + 1

	// The tip decides when the query indexes get built. Guessing it on an
	// RPC failure would build them mid-sync, so a failed Status is fatal.
	status, err := x.client.Status(ctx)
	if err != nil {
		return errs.Wrap(errs.TendermintRPC, err)
	}
	tip := status.SyncInfo.LatestBlockHeight
	log.WithFields(logrus.Fields{"start": start, "tip": tip}).Info("starting sync")

	blocks := make(chan *bundle, blockQueueSize)
	go x.produce(ctx, start, blocks)

	indexed := !x.createIndex
	for {
		var b *bundle
		select {
		case <-ctx.Done():
			x.Stop()
			return nil
		case b = <-blocks:
		}
		if b == nil {
			return nil
		}

		if err := x.saver.SaveBlock(ctx, b.block, b.results, x.sums); err != nil {
			x.Stop()
			return err
		}
		log.WithFields(logrus.Fields{
			"height": b.block.Height,
			"txs":    len(b.block.Data.Txs),
		}).Info("block saved")

		if !indexed && b.block.Height >= tip {
			indexed = true
			if err := x.ensureIndexes(ctx); err != nil {
				return err
			}
		}
	}
}

func (x *Indexer) ensureIndexes(ctx context.Context) error {
	ok, err := x.saver.HasIndexes(ctx)
	if err != nil || ok {
		return err
	}
	log.Info("sync caught up, creating query indexes")
	return x.saver.CreateIndexes(ctx)
}

func (x *Indexer) produce(ctx context.Context, start int64, out chan<- *bundle) {
	defer close(out)

	for height := start; !x.shutdown.Load(); height++ {
		b := x.fetch(ctx, height)
		if b == nil {
			return
		}
		select {
		case out <- b:
		case <-ctx.Done():
			return
		}
	}
}

// fetch retrieves one block together with its results, retrying until it
// succeeds. A response error means the height does not exist yet, so the
// chain tip is ahead of us and waiting is correct; transport errors are
// retried immediately.
func (x *Indexer) fetch(ctx context.Context, height int64) *bundle {
	h := height
	for {
		if x.shutdown.Load() {
			return nil
		}

		start := time.Now()
		block, err := x.client.Block(ctx, &h)
		var results *coretypes.ResultBlockResults
		if err == nil {
			results, err = x.client.BlockResults(ctx, &h)
		}
		x.metrics.GetBlockDuration.
			WithLabelValues(statusLabel(err)).
			Observe(time.Since(start).Seconds())

		if err == nil {
			x.metrics.LastGetBlockHeight.Set(float64(height))
			return &bundle{block: block.Block, results: results}
		}
		if ctx.Err() != nil {
			return nil
		}

		var rpcErr *rpctypes.RPCError
		if errors.As(err, &rpcErr) {
			log.WithField("height", height).Debug("height not available yet, waiting")
			select {
			case <-time.After(rpcRetryWait):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		log.WithFields(logrus.Fields{"height": height, "err": err}).Warn("rpc fetch failed, retrying")
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "Error"
	}
	return "Ok"
}
