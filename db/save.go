package db

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/Zondax/namadexer/checksums"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/types"
)

// Rows per INSERT are capped so a batch never exceeds the protocol limit
// of 65535 bind parameters.
const maxBindParams = 65535

const insertBlock = `INSERT INTO %s.blocks (
	block_id,
	header_version_app, header_version_block, header_chain_id,
	header_height, header_time,
	header_last_block_id_hash, header_last_block_id_parts_header_total,
	header_last_block_id_parts_header_hash,
	header_last_commit_hash, header_data_hash,
	header_validators_hash, header_next_validators_hash,
	header_consensus_hash, header_app_hash, header_last_results_hash,
	header_evidence_hash, header_proposer_address,
	commit_height, commit_round, commit_block_id_hash,
	commit_block_id_parts_header_total, commit_block_id_parts_header_hash
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, $21, $22, $23)`

var txColumns = []string{
	"hash", "block_id", "tx_index", "tx_type", "wrapper_id",
	"fee_amount_per_gas_unit", "fee_token", "gas_limit_multiplier",
	"code", "code_type", "data", "memo", "return_code",
}

// SaveBlock persists a block, its commit signatures, evidences and
// transactions in a single database transaction. Either the whole block
// lands or none of it does, so a crash mid-save never leaves a partial
// block behind.
func (d *Database) SaveBlock(ctx context.Context, block *tmtypes.Block, results *coretypes.ResultBlockResults, sums checksums.Map) error {
	start := time.Now()
	err := d.saveBlock(ctx, block, results, sums)

	status := statusLabel(err)
	d.metrics.SaveBlockDuration.
		WithLabelValues(strconv.FormatInt(block.Height, 10), status).
		Observe(millisSince(start))
	d.metrics.SaveBlockCounter.WithLabelValues(status).Inc()
	if err == nil {
		d.metrics.LastSaveBlockHeight.Set(float64(block.Height))
	}
	return err
}

func (d *Database) saveBlock(ctx context.Context, block *tmtypes.Block, results *coretypes.ResultBlockResults, sums checksums.Map) error {
	dbtx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}
	defer dbtx.Rollback()

	blockID := []byte(block.Header.Hash())

	if err := d.insertBlockRow(ctx, dbtx, blockID, block); err != nil {
		return err
	}
	if err := d.saveCommitSignatures(ctx, dbtx, blockID, block.LastCommit); err != nil {
		return err
	}
	if err := d.saveEvidences(ctx, dbtx, blockID, block.Evidence.Evidence); err != nil {
		return err
	}
	if err := d.saveTransactions(ctx, dbtx, blockID, block, results, sums); err != nil {
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return errs.Wrap(errs.DB, err)
	}
	return nil
}

func (d *Database) insertBlockRow(ctx context.Context, dbtx *sqlx.Tx, blockID []byte, block *tmtypes.Block) error {
	h := &block.Header

	args := make([]interface{}, 0, 23)
	args = append(args,
		blockID,
		int64(h.Version.App), int64(h.Version.Block), h.ChainID,
		h.Height, h.Time.Format(time.RFC3339Nano),
	)

	if h.LastBlockID.IsZero() {
		args = append(args, nil, nil, nil)
	} else {
		args = append(args,
			[]byte(h.LastBlockID.Hash),
			int64(h.LastBlockID.PartSetHeader.Total),
			[]byte(h.LastBlockID.PartSetHeader.Hash),
		)
	}

	args = append(args,
		nullBytes(h.LastCommitHash), nullBytes(h.DataHash),
		[]byte(h.ValidatorsHash), []byte(h.NextValidatorsHash),
		[]byte(h.ConsensusHash), upperHex(h.AppHash),
		nullBytes(h.LastResultsHash), nullBytes(h.EvidenceHash),
		upperHex(h.ProposerAddress),
	)

	if lc := block.LastCommit; lc != nil {
		args = append(args,
			lc.Height, int64(lc.Round),
			[]byte(lc.BlockID.Hash),
			int64(lc.BlockID.PartSetHeader.Total),
			[]byte(lc.BlockID.PartSetHeader.Hash),
		)
	} else {
		args = append(args, nil, nil, nil, nil, nil)
	}

	_, err := dbtx.ExecContext(ctx, fmt.Sprintf(insertBlock, d.schema), args...)
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}
	return nil
}

func (d *Database) saveCommitSignatures(ctx context.Context, dbtx *sqlx.Tx, blockID []byte, commit *tmtypes.Commit) error {
	start := time.Now()

	var rows [][]interface{}
	if commit != nil {
		for _, sig := range commit.Signatures {
			var ts interface{}
			if !sig.Timestamp.IsZero() {
				ts = strconv.FormatInt(sig.Timestamp.Unix(), 10)
			}
			rows = append(rows, []interface{}{
				blockID,
				int64(sig.BlockIDFlag),
				nullBytes([]byte(sig.ValidatorAddress)),
				ts,
				nullBytes(sig.Signature),
			})
		}
	}

	err := d.bulkInsert(ctx, dbtx, "commit_signatures",
		[]string{"block_id", "block_id_flag", "validator_address", "timestamp", "signature"},
		rows)

	d.metrics.SaveCommitSigDuration.
		WithLabelValues(statusLabel(err), strconv.Itoa(len(rows))).
		Observe(millisSince(start))
	return err
}

func (d *Database) saveEvidences(ctx context.Context, dbtx *sqlx.Tx, blockID []byte, evidences tmtypes.EvidenceList) error {
	start := time.Now()

	var rows [][]interface{}
	for _, ev := range evidences {
		dve, ok := ev.(*tmtypes.DuplicateVoteEvidence)
		if !ok {
			log.WithField("type", fmt.Sprintf("%T", ev)).Warn("skipping unsupported evidence")
			continue
		}
		rows = append(rows, []interface{}{
			blockID,
			dve.VoteA.Height,
			strconv.FormatInt(dve.VoteA.Timestamp.Unix(), 10),
			[]byte(dve.VoteA.ValidatorAddress),
			strconv.FormatInt(dve.TotalVotingPower, 10),
			strconv.FormatInt(dve.ValidatorPower, 10),
		})
	}

	err := d.bulkInsert(ctx, dbtx, "evidences",
		[]string{"block_id", "height", "time", "address", "total_voting_power", "validator_power"},
		rows)

	d.metrics.SaveEvidencesDuration.
		WithLabelValues(statusLabel(err), strconv.Itoa(len(rows))).
		Observe(millisSince(start))
	return err
}

func (d *Database) saveTransactions(ctx context.Context, dbtx *sqlx.Tx, blockID []byte, block *tmtypes.Block, results *coretypes.ResultBlockResults, sums checksums.Map) error {
	start := time.Now()
	err := d.saveTransactionsInner(ctx, dbtx, blockID, block, results, sums)
	d.metrics.SaveTxsDuration.
		WithLabelValues(statusLabel(err), strconv.Itoa(len(block.Data.Txs))).
		Observe(millisSince(start))
	return err
}

func (d *Database) saveTransactionsInner(ctx context.Context, dbtx *sqlx.Tx, blockID []byte, block *tmtypes.Block, results *coretypes.ResultBlockResults, sums checksums.Map) error {
	// Transactions of the previous block, fetched lazily on the first
	// decrypted transaction. The i-th decrypted transaction of this block
	// pairs with the i-th row of the previous block, counting every
	// transaction there regardless of type.
	var prevTxs [][]byte
	decryptedSeen := 0

	var rows [][]interface{}
	for i, raw := range block.Data.Txs {
		tx, err := types.DecodeTx(raw)
		if err != nil {
			return err
		}

		hash := tx.HeaderHash()
		var (
			wrapperID  []byte
			feeAmount  interface{}
			feeToken   interface{}
			gasLimit   interface{}
			code       []byte
			codeType   interface{}
			returnCode interface{}
		)

		switch tx.Header.TxType {
		case types.TxWrapper:
			feeAmount = tx.Header.Fee.AmountPerGasUnit
			feeToken = tx.Header.Fee.Token
			gl, err := gasLimitValue(tx.Header.GasLimit)
			if err != nil {
				return errs.E(errs.InvalidTxData,
					"block %d: tx %d: %v", block.Height, i, err)
			}
			gasLimit = gl

		case types.TxDecrypted:
			hash = tx.RawHash()

			if prevTxs == nil {
				prevTxs, err = d.prevBlockTxHashes(ctx, block.Height-1)
				if err != nil {
					return err
				}
			}
			if decryptedSeen >= len(prevTxs) {
				return errs.E(errs.InvalidTxData,
					"block %d: decrypted tx %d has no counterpart in previous block",
					block.Height, decryptedSeen)
			}
			wrapperID = prevTxs[decryptedSeen]
			decryptedSeen++

			code = tx.Header.CodeHash[:]
			kind := sums.KindOf(hex.EncodeToString(code))
			codeType = kind

			rc, err := endBlockReturnCode(results, hash)
			if err != nil {
				return err
			}
			if rc != nil {
				returnCode = *rc
			}

			if rc != nil && *rc == 0 {
				if err := d.savePayload(ctx, dbtx, kind, hash, tx.Data); err != nil {
					return err
				}
			}
		}

		rows = append(rows, []interface{}{
			hash, blockID, i, tx.Header.TxType.String(), nullBytes(wrapperID),
			feeAmount, feeToken, gasLimit,
			nullBytes(code), codeType, nullBytes(tx.Data), nullBytes(tx.Memo),
			returnCode,
		})
	}

	return d.bulkInsert(ctx, dbtx, "transactions", txColumns, rows)
}

// prevBlockTxHashes returns every transaction hash of the block at
// height, in block order.
func (d *Database) prevBlockTxHashes(ctx context.Context, height int64) ([][]byte, error) {
	query := fmt.Sprintf(`SELECT hash FROM %[1]s.transactions
		WHERE block_id = (SELECT block_id FROM %[1]s.blocks WHERE header_height = $1)
		ORDER BY tx_index`, d.schema)

	var hashes [][]byte
	if err := d.db.SelectContext(ctx, &hashes, query, height); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return hashes, nil
}

// endBlockReturnCode finds the execution result the node emitted for the
// transaction with the given raw hash. A block carrying decrypted
// transactions without end-block events cannot be indexed correctly, so
// that is fatal; a merely missing hash is not.
func endBlockReturnCode(results *coretypes.ResultBlockResults, hash []byte) (*int64, error) {
	if len(results.EndBlockEvents) == 0 {
		return nil, errs.E(errs.InvalidTxData,
			"block %d: no end-block events for decrypted transactions", results.Height)
	}

	want := hex.EncodeToString(hash)
	for _, ev := range results.EndBlockEvents {
		matched := false
		for _, attr := range ev.Attributes {
			if string(attr.Key) == "hash" && strings.EqualFold(string(attr.Value), want) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, attr := range ev.Attributes {
			if string(attr.Key) != "code" {
				continue
			}
			code, err := strconv.ParseInt(string(attr.Value), 10, 64)
			if err != nil {
				return nil, errs.Wrap(errs.ParseInt, err)
			}
			return &code, nil
		}
	}
	return nil, nil
}

// payloadSavers maps a checksum kind to the routine persisting its side
// table rows. Kinds missing here are stored verbatim in the transactions
// row only.
var payloadSavers = map[string]func(*Database, context.Context, *sqlx.Tx, []byte, []byte) error{
	"tx_transfer":                    (*Database).saveTransfer,
	"tx_bond":                        (*Database).saveBond,
	"tx_unbond":                      (*Database).saveUnbond,
	"tx_bridge_pool":                 (*Database).saveBridgePool,
	"tx_vote_proposal":               (*Database).saveVoteProposal,
	"tx_update_account":              (*Database).saveAccountUpdate,
	"tx_ibc":                         validateOnly(types.DecodeIbc),
	"tx_init_account":                validateOnly(types.DecodeInitAccount),
	"tx_init_validator":              validateOnly(types.DecodeInitValidator),
	"tx_init_proposal":               validateOnly(types.DecodeInitProposal),
	"tx_withdraw":                    validateOnly(types.DecodeWithdraw),
	"tx_claim_rewards":               validateOnly(types.DecodeClaimRewards),
	"tx_redelegate":                  validateOnly(types.DecodeRedelegate),
	"tx_become_validator":            validateOnly(types.DecodeBecomeValidator),
	"tx_change_consensus_key":        validateOnly(types.DecodeChangeConsensusKey),
	"tx_change_validator_commission": validateOnly(types.DecodeChangeValidatorCommission),
	"tx_change_validator_metadata":   validateOnly(types.DecodeChangeValidatorMetadata),
	"tx_update_steward_commission":   validateOnly(types.DecodeUpdateStewardCommission),
	"tx_reveal_pk":                   validateString(types.DecodePublicKey),
	"tx_resign_steward":              validateString(types.DecodeAddress),
	"tx_unjail_validator":            validateString(types.DecodeAddress),
	"tx_deactivate_validator":        validateString(types.DecodeAddress),
	"tx_reactivate_validator":        validateString(types.DecodeAddress),
}

func (d *Database) savePayload(ctx context.Context, dbtx *sqlx.Tx, kind string, txID, data []byte) error {
	saver, ok := payloadSavers[kind]
	if !ok {
		return nil
	}
	return saver(d, ctx, dbtx, txID, data)
}

// validateOnly parses a payload to catch malformed data early without
// persisting anything beyond the transactions row.
func validateOnly[T any](decode func([]byte) (*T, error)) func(*Database, context.Context, *sqlx.Tx, []byte, []byte) error {
	return func(_ *Database, _ context.Context, _ *sqlx.Tx, _, data []byte) error {
		_, err := decode(data)
		return err
	}
}

func validateString(decode func([]byte) (string, error)) func(*Database, context.Context, *sqlx.Tx, []byte, []byte) error {
	return func(_ *Database, _ context.Context, _ *sqlx.Tx, _, data []byte) error {
		_, err := decode(data)
		return err
	}
}

func (d *Database) saveTransfer(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	t, err := types.DecodeTransfer(data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s.tx_transfer
		(tx_id, source, target, token, amount, key, shielded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, d.schema)
	_, err = dbtx.ExecContext(ctx, query,
		txID, t.Source, t.Target, t.Token, t.Amount, t.Key, nullBytes(t.Shielded))
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}
	return nil
}

func (d *Database) saveBond(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	return d.saveBondRow(ctx, dbtx, txID, data, true)
}

func (d *Database) saveUnbond(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	return d.saveBondRow(ctx, dbtx, txID, data, false)
}

func (d *Database) saveBondRow(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte, bond bool) error {
	b, err := types.DecodeBond(data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s.tx_bond
		(tx_id, validator, amount, source, bond)
		VALUES ($1, $2, $3, $4, $5)`, d.schema)
	_, err = dbtx.ExecContext(ctx, query, txID, b.Validator, b.Amount, b.Source, bond)
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}
	return nil
}

func (d *Database) saveBridgePool(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	p, err := types.DecodePendingTransfer(data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s.tx_bridge_pool
		(tx_id, asset, recipient, sender, amount, gas_amount, payer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, d.schema)
	_, err = dbtx.ExecContext(ctx, query,
		txID, p.Asset, p.Recipient, p.Sender, p.Amount, p.GasAmount, p.Payer)
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}
	return nil
}

func (d *Database) saveVoteProposal(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	v, err := types.DecodeVoteProposal(data)
	if err != nil {
		return err
	}

	id := proposalID(v.ID)
	query := fmt.Sprintf(`INSERT INTO %s.vote_proposal
		(vote_proposal_id, vote, voter, tx_id)
		VALUES ($1, $2, $3, $4)`, d.schema)
	if _, err := dbtx.ExecContext(ctx, query, id, v.Vote, v.Voter, txID); err != nil {
		return errs.Wrap(errs.DB, err)
	}

	var rows [][]interface{}
	for _, delegation := range v.Delegations {
		rows = append(rows, []interface{}{delegation, id})
	}
	return d.bulkInsert(ctx, dbtx, "delegations",
		[]string{"delegation_id", "vote_proposal_id"}, rows)
}

func (d *Database) saveAccountUpdate(ctx context.Context, dbtx *sqlx.Tx, txID, data []byte) error {
	u, err := types.DecodeUpdateAccount(data)
	if err != nil {
		return err
	}

	var threshold interface{}
	if u.Threshold != nil {
		threshold = int64(*u.Threshold)
	}

	query := fmt.Sprintf(`INSERT INTO %s.account_updates
		(account_id, vp_code_hash, threshold, tx_id)
		VALUES ($1, $2, $3, $4) RETURNING update_id`, d.schema)

	var updateID int64
	err = dbtx.QueryRowxContext(ctx, query,
		u.Addr, nullBytes(u.VpCodeHash), threshold, txID).Scan(&updateID)
	if err != nil {
		return errs.Wrap(errs.DB, err)
	}

	var rows [][]interface{}
	for _, pk := range u.PublicKeys {
		rows = append(rows, []interface{}{updateID, pk})
	}
	return d.bulkInsert(ctx, dbtx, "account_public_keys",
		[]string{"update_id", "public_key"}, rows)
}

// bulkInsert writes rows as multi-row INSERT statements, chunked to stay
// under the bind parameter limit. A nil rows slice is a no-op.
func (d *Database) bulkInsert(ctx context.Context, dbtx *sqlx.Tx, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	chunkSize := maxBindParams / len(columns)
	for len(rows) > 0 {
		chunk := rows
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		rows = rows[len(chunk):]

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s.%s (%s) VALUES ",
			d.schema, table, strings.Join(columns, ", "))

		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j := range row {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+j+1)
			}
			sb.WriteByte(')')
			args = append(args, row...)
		}

		if _, err := dbtx.ExecContext(ctx, sb.String(), args...); err != nil {
			return errs.Wrap(errs.DB, err)
		}
	}
	return nil
}

// gasLimitValue converts the wrapper gas limit for a BIGINT column,
// rejecting values the column cannot hold.
func gasLimitValue(limit uint64) (int64, error) {
	if limit > math.MaxInt64 {
		return 0, fmt.Errorf("gas limit %d exceeds storable range", limit)
	}
	return int64(limit), nil
}

// proposalID renders a governance proposal id the way it is stored: eight
// big-endian bytes.
func proposalID(id uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, id)
	return out
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func statusLabel(err error) string {
	if err != nil {
		return "Error"
	}
	return "Ok"
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
