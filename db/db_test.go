package db

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	tmversion "github.com/tendermint/tendermint/proto/tendermint/version"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/Zondax/namadexer/checksums"
	"github.com/Zondax/namadexer/config"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/metrics"
	"github.com/Zondax/namadexer/types"
)

// testDB connects to the database named by INDEXER_TEST_DB and creates a
// throwaway schema. Tests needing a live PostgreSQL skip without it.
func testDB(t *testing.T) *Database {
	t.Helper()
	dsn := os.Getenv("INDEXER_TEST_DB")
	if dsn == "" {
		t.Skip("INDEXER_TEST_DB not set, skipping database tests")
	}

	pool, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)

	d := WithPool(pool, fmt.Sprintf("indexer-test-%d", time.Now().UnixNano()), metrics.New())
	t.Cleanup(func() {
		pool.Exec("DROP SCHEMA IF EXISTS " + d.Schema() + " CASCADE")
		pool.Close()
	})

	require.NoError(t, d.CreateTables(context.Background()))
	return d
}

func hash32(b byte) []byte {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return h
}

func testBlock(height int64, txs []tmtypes.Tx) *tmtypes.Block {
	block := &tmtypes.Block{
		Header: tmtypes.Header{
			Version:            tmversion.Consensus{Block: 11},
			ChainID:            "indexer-test",
			Height:             height,
			Time:               time.Now().UTC(),
			LastCommitHash:     hash32(1),
			DataHash:           hash32(2),
			ValidatorsHash:     hash32(3),
			NextValidatorsHash: hash32(4),
			ConsensusHash:      hash32(5),
			AppHash:            hash32(6),
			LastResultsHash:    hash32(7),
			EvidenceHash:       hash32(8),
			ProposerAddress:    hash32(9)[:20],
		},
		Data: tmtypes.Data{Txs: txs},
		LastCommit: &tmtypes.Commit{
			Height: height - 1,
			BlockID: tmtypes.BlockID{
				Hash:          hash32(10),
				PartSetHeader: tmtypes.PartSetHeader{Total: 1, Hash: hash32(11)},
			},
			Signatures: []tmtypes.CommitSig{{
				BlockIDFlag:      tmtypes.BlockIDFlagCommit,
				ValidatorAddress: hash32(9)[:20],
				Timestamp:        time.Now().UTC(),
				Signature:        hash32(12),
			}},
		},
	}
	if height > 1 {
		block.Header.LastBlockID = tmtypes.BlockID{
			Hash:          hash32(20),
			PartSetHeader: tmtypes.PartSetHeader{Total: 1, Hash: hash32(21)},
		}
	}
	return block
}

func encodeTx(t *testing.T, tx *types.Tx) tmtypes.Tx {
	t.Helper()
	raw, err := tx.Encode()
	require.NoError(t, err)
	return raw
}

func TestConnectionString(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "dbhost", Port: 5433, User: "u", Password: "p", Dbname: "blocks",
	}
	require.Equal(t,
		"postgres://u:p@dbhost:5433/blocks?sslmode=disable",
		ConnectionString(cfg))

	cfg.Password = ""
	cfg.Port = 0
	require.Equal(t,
		"postgres://u@dbhost:5432/blocks?sslmode=disable",
		ConnectionString(cfg))
}

func TestSchemaName(t *testing.T) {
	d := WithPool(nil, "public-testnet-14", nil)
	require.Equal(t, "public_testnet_14", d.Schema())
}

func TestSaveAndQueryBlocks(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	codeHash := hash32(0x77)
	sums := checksums.Map{hex.EncodeToString(codeHash): "tx_transfer"}

	// Height 1 carries the wrapper.
	wrapper := &types.Tx{
		Header: types.Header{
			ChainID:   "indexer-test",
			Timestamp: "2023-10-05T14:48:00Z",
			TxType:    types.TxWrapper,
			Fee:       types.Fee{AmountPerGasUnit: "0.0001", Token: "NAM"},
			GasLimit:  20000,
		},
	}
	block1 := testBlock(1, []tmtypes.Tx{encodeTx(t, wrapper)})
	results1 := &coretypes.ResultBlockResults{Height: 1}
	require.NoError(t, d.SaveBlock(ctx, block1, results1, sums))

	// Height 2 carries the decrypted transfer paired with that wrapper.
	payload, err := types.EncodePayload(types.Transfer{
		Source: "atest1sender", Target: MaspAddr, Token: "NAM", Amount: "12.5",
	})
	require.NoError(t, err)

	decrypted := &types.Tx{
		Header: types.Header{
			ChainID:   "indexer-test",
			Timestamp: "2023-10-05T14:48:05Z",
			TxType:    types.TxDecrypted,
		},
		Data: payload,
	}
	copy(decrypted.Header.CodeHash[:], codeHash)

	rawHash := decrypted.RawHash()
	block2 := testBlock(2, []tmtypes.Tx{encodeTx(t, decrypted)})
	results2 := &coretypes.ResultBlockResults{
		Height: 2,
		EndBlockEvents: []abci.Event{{
			Type: "applied",
			Attributes: []abci.EventAttribute{
				{Key: []byte("hash"), Value: []byte(hex.EncodeToString(rawHash))},
				{Key: []byte("code"), Value: []byte("0")},
			},
		}},
	}
	require.NoError(t, d.SaveBlock(ctx, block2, results2, sums))

	height, err := d.LastHeight(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, height)

	row, err := d.BlockByHeight(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, []byte(block2.Header.Hash()), row.BlockID)
	require.Equal(t, "indexer-test", row.HeaderChainID)

	byID, err := d.BlockByID(ctx, row.BlockID)
	require.NoError(t, err)
	require.Equal(t, row, byID)

	last, err := d.LastBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, last.HeaderHeight)

	pair, err := d.LastBlocks(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	require.EqualValues(t, 2, pair[0].HeaderHeight)

	// The decrypted row keys on the raw hash and points back at the
	// wrapper from height 1.
	txRow, err := d.TxByHash(ctx, rawHash)
	require.NoError(t, err)
	require.NotNil(t, txRow)
	require.Equal(t, "Decrypted", txRow.TxType)
	require.Equal(t, wrapper.HeaderHash(), txRow.WrapperID)
	require.NotNil(t, txRow.ReturnCode)
	require.EqualValues(t, 0, *txRow.ReturnCode)
	require.NotNil(t, txRow.CodeType)
	require.Equal(t, "tx_transfer", *txRow.CodeType)

	hashes, err := d.TxHashesByBlock(ctx, row.BlockID)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.Equal(t, rawHash, hashes[0].Hash)

	transfers, err := d.ShieldedTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Equal(t, "12.5", transfers[0].Amount)
	require.Equal(t, MaspAddr, transfers[0].Target)

	byAddr, err := d.TxsByAddress(ctx, "atest1sender")
	require.NoError(t, err)
	require.Len(t, byAddr, 1)
	require.Equal(t, rawHash, byAddr[0].Hash)

	// Unknown lookups come back nil, not as errors.
	missing, err := d.TxByHash(ctx, hash32(0xee))
	require.NoError(t, err)
	require.Nil(t, missing)

	votes, err := d.ValidatorVotes(ctx, hash32(9)[:20], 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, votes)
}

func TestSaveBlockMissingEndBlockEvents(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	decrypted := &types.Tx{
		Header: types.Header{TxType: types.TxDecrypted},
	}
	block := testBlock(1, []tmtypes.Tx{encodeTx(t, decrypted)})
	results := &coretypes.ResultBlockResults{Height: 1}

	err := d.SaveBlock(ctx, block, results, checksums.Map{})
	require.Error(t, err)

	// The whole block rolled back with the failing transaction.
	height, err := d.LastHeight(ctx)
	require.NoError(t, err)
	require.Zero(t, height)
}

func TestIndexes(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	ok, err := d.HasIndexes(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.CreateIndexes(ctx))

	ok, err = d.HasIndexes(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A second run must be a no-op: ALTER TABLE would fail if the
	// constraints were attempted again.
	require.NoError(t, d.CreateIndexes(ctx))

	// The primary and foreign keys landed alongside the indexes.
	var constraints int
	err = d.db.GetContext(ctx, &constraints,
		`SELECT COUNT(*) FROM pg_constraint c
		 JOIN pg_namespace n ON n.oid = c.connamespace
		 WHERE n.nspname = $1 AND c.contype IN ('p', 'f')`, d.Schema())
	require.NoError(t, err)
	require.EqualValues(t, 6, constraints)
}

// The i-th decrypted transaction of a block pairs with the i-th row of the
// previous block no matter what type that row is; a previous block mixing
// decrypted and wrapper transactions must not skew the pairing.
func TestDecryptedPairsWithAnyPreviousTx(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	codeHash := hash32(0x77)
	sums := checksums.Map{hex.EncodeToString(codeHash): "tx_transfer"}

	applied := func(hash []byte) []abci.Event {
		return []abci.Event{{
			Type: "applied",
			Attributes: []abci.EventAttribute{
				{Key: []byte("hash"), Value: []byte(hex.EncodeToString(hash))},
				{Key: []byte("code"), Value: []byte("0")},
			},
		}}
	}
	decrypted := func(source string) *types.Tx {
		payload, err := types.EncodePayload(types.Transfer{
			Source: source, Target: "atest1target", Token: "NAM", Amount: "1",
		})
		require.NoError(t, err)
		tx := &types.Tx{Header: types.Header{TxType: types.TxDecrypted}, Data: payload}
		copy(tx.Header.CodeHash[:], codeHash)
		return tx
	}
	wrapper := func(gas uint64) *types.Tx {
		return &types.Tx{Header: types.Header{TxType: types.TxWrapper, GasLimit: gas}}
	}

	w0 := wrapper(100)
	require.NoError(t, d.SaveBlock(ctx, testBlock(1, []tmtypes.Tx{encodeTx(t, w0)}),
		&coretypes.ResultBlockResults{Height: 1}, sums))

	// Height 2 holds a decrypted transaction first and a wrapper second.
	d0 := decrypted("atest1first")
	w1 := wrapper(200)
	require.NoError(t, d.SaveBlock(ctx,
		testBlock(2, []tmtypes.Tx{encodeTx(t, d0), encodeTx(t, w1)}),
		&coretypes.ResultBlockResults{Height: 2, EndBlockEvents: applied(d0.RawHash())}, sums))

	// The first decrypted transaction of height 3 pairs with the first row
	// of height 2, which is d0, not the wrapper behind it.
	d1 := decrypted("atest1second")
	require.NoError(t, d.SaveBlock(ctx,
		testBlock(3, []tmtypes.Tx{encodeTx(t, d1)}),
		&coretypes.ResultBlockResults{Height: 3, EndBlockEvents: applied(d1.RawHash())}, sums))

	row, err := d.TxByHash(ctx, d1.RawHash())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, d0.RawHash(), row.WrapperID)
	require.NotEqual(t, w1.HeaderHash(), row.WrapperID)
}

func TestLastBlockEmptyChain(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	row, err := d.LastBlock(ctx)
	require.Error(t, err)
	require.Nil(t, row)
	require.Equal(t, errs.DB, errs.Classify(err))

	// Lookups by height stay soft on an empty chain.
	row, err = d.BlockByHeight(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestGasLimitValue(t *testing.T) {
	v, err := gasLimitValue(math.MaxInt64)
	require.NoError(t, err)
	require.EqualValues(t, int64(math.MaxInt64), v)

	_, err = gasLimitValue(uint64(math.MaxInt64) + 1)
	require.Error(t, err)
}

func TestPayloadSaversCoverKnownKinds(t *testing.T) {
	for _, kind := range []string{
		"tx_transfer", "tx_bond", "tx_unbond", "tx_vote_proposal",
		"tx_init_account", "tx_init_validator", "tx_update_account",
		"tx_ibc", "tx_bridge_pool", "tx_reveal_pk",
	} {
		require.Contains(t, payloadSavers, kind)
	}
}

func TestVoteProposalAndAccountUpdates(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	voteHash := hash32(0x31)
	voteSums := checksums.Map{hex.EncodeToString(voteHash): "tx_vote_proposal"}
	votePayload, err := types.EncodePayload(types.VoteProposal{
		ID: 7, Vote: "yay", Voter: "atest1voter", Delegations: []string{"atest1d1"},
	})
	require.NoError(t, err)

	updateHash := hash32(0x32)
	threshold := uint8(2)
	updateSums := checksums.Map{hex.EncodeToString(updateHash): "tx_update_account"}
	updatePayload, err := types.EncodePayload(types.UpdateAccount{
		Addr: "atest1acct", PublicKeys: []string{"pk1", "pk2"}, Threshold: &threshold,
	})
	require.NoError(t, err)

	save := func(height int64, codeHash, payload []byte, sums checksums.Map) {
		wrapper := &types.Tx{Header: types.Header{TxType: types.TxWrapper}}
		wrapper.Header.GasLimit = uint64(height)
		require.NoError(t, d.SaveBlock(ctx, testBlock(height, []tmtypes.Tx{encodeTx(t, wrapper)}),
			&coretypes.ResultBlockResults{Height: height}, sums))

		dec := &types.Tx{Header: types.Header{TxType: types.TxDecrypted}, Data: payload}
		dec.Header.GasLimit = uint64(height)
		copy(dec.Header.CodeHash[:], codeHash)
		require.NoError(t, d.SaveBlock(ctx, testBlock(height+1, []tmtypes.Tx{encodeTx(t, dec)}),
			&coretypes.ResultBlockResults{
				Height: height + 1,
				EndBlockEvents: []abci.Event{{Attributes: []abci.EventAttribute{
					{Key: []byte("hash"), Value: []byte(hex.EncodeToString(dec.RawHash()))},
					{Key: []byte("code"), Value: []byte("0")},
				}}},
			}, sums))
	}

	save(1, voteHash, votePayload, voteSums)
	save(3, updateHash, updatePayload, updateSums)

	votes, err := d.ProposalVotes(ctx, 7)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, "yay", votes[0].Vote)
	require.Equal(t, "atest1voter", votes[0].Voter)

	delegations, err := d.ProposalDelegations(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"atest1d1"}, delegations)

	updates, err := d.AccountUpdates(ctx, "atest1acct")
	require.NoError(t, err)
	require.EqualValues(t, []int64{2}, []int64(updates.Thresholds))
	require.Len(t, updates.PublicKeys, 1)
	require.ElementsMatch(t, []string{"pk1", "pk2"}, []string(updates.PublicKeys[0]))
}
