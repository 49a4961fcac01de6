package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/Zondax/namadexer/checksums"
	"github.com/Zondax/namadexer/metrics"
)

// fakeClient serves a fixed range of heights; asking beyond the tip
// yields a response error, like a real node does.
type fakeClient struct {
	tip int64

	mu        sync.Mutex
	transport int   // transport failures to inject before succeeding
	statusErr error // returned by Status when set
}

func (c *fakeClient) Block(_ context.Context, height *int64) (*coretypes.ResultBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport > 0 {
		c.transport--
		return nil, errors.New("connection refused")
	}
	if *height > c.tip {
		return nil, &rpctypes.RPCError{Code: -32603, Message: "Internal error", Data: "height must not be higher than the current blockchain height"}
	}
	return &coretypes.ResultBlock{
		Block: &tmtypes.Block{Header: tmtypes.Header{Height: *height}},
	}, nil
}

func (c *fakeClient) BlockResults(_ context.Context, height *int64) (*coretypes.ResultBlockResults, error) {
	return &coretypes.ResultBlockResults{Height: *height}, nil
}

func (c *fakeClient) Status(context.Context) (*coretypes.ResultStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return &coretypes.ResultStatus{
		SyncInfo: coretypes.SyncInfo{LatestBlockHeight: c.tip},
	}, nil
}

type fakeSaver struct {
	mu      sync.Mutex
	last    int64
	heights []int64
	saveErr error

	hasIndexes bool
	created    int
}

func (s *fakeSaver) SaveBlock(_ context.Context, block *tmtypes.Block, results *coretypes.ResultBlockResults, _ checksums.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.heights = append(s.heights, block.Height)
	return nil
}

func (s *fakeSaver) LastHeight(context.Context) (int64, error) { return s.last, nil }

func (s *fakeSaver) HasIndexes(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasIndexes, nil
}

func (s *fakeSaver) CreateIndexes(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	s.hasIndexes = true
	return nil
}

func (s *fakeSaver) saved() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.heights...)
}

func runUntilCaughtUp(t *testing.T, x *Indexer, s *fakeSaver, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- x.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for len(s.saved()) < want {
		select {
		case <-deadline:
			t.Fatalf("saved %d blocks, want %d", len(s.saved()), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRunSyncsInOrder(t *testing.T) {
	client := &fakeClient{tip: 5}
	saver := &fakeSaver{}
	x := New(client, saver, checksums.Map{}, metrics.New(), false)

	runUntilCaughtUp(t, x, saver, 5)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, saver.saved())
}

func TestRunResumesAfterLastHeight(t *testing.T) {
	client := &fakeClient{tip: 6}
	saver := &fakeSaver{last: 4}
	x := New(client, saver, checksums.Map{}, metrics.New(), false)

	runUntilCaughtUp(t, x, saver, 2)
	require.Equal(t, []int64{5, 6}, saver.saved())
}

func TestRunRetriesTransportErrors(t *testing.T) {
	client := &fakeClient{tip: 2, transport: 3}
	saver := &fakeSaver{}
	x := New(client, saver, checksums.Map{}, metrics.New(), false)

	runUntilCaughtUp(t, x, saver, 2)
	require.Equal(t, []int64{1, 2}, saver.saved())
}

func TestRunCreatesIndexesAtTip(t *testing.T) {
	client := &fakeClient{tip: 3}
	saver := &fakeSaver{}
	x := New(client, saver, checksums.Map{}, metrics.New(), true)

	runUntilCaughtUp(t, x, saver, 3)

	saver.mu.Lock()
	defer saver.mu.Unlock()
	require.Equal(t, 1, saver.created)
}

// An unreachable node must abort the run rather than sync against a zero
// tip, which would build the query indexes right after the first block.
func TestRunFailsWhenStatusUnavailable(t *testing.T) {
	client := &fakeClient{tip: 50, statusErr: errors.New("connection refused")}
	saver := &fakeSaver{}
	x := New(client, saver, checksums.Map{}, metrics.New(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := x.Run(ctx)
	require.Error(t, err)
	require.Empty(t, saver.saved())
	require.Zero(t, saver.created)
}

func TestRunStopsOnSaveError(t *testing.T) {
	client := &fakeClient{tip: 3}
	saver := &fakeSaver{saveErr: errors.New("disk full")}
	x := New(client, saver, checksums.Map{}, metrics.New(), false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := x.Run(ctx)
	require.Error(t, err)
	require.Empty(t, saver.saved())
}
