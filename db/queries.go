package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zondax/namadexer/errs"
)

// Read queries backing the HTTP API. A missing row is reported as a nil
// result with a nil error; callers translate that into a JSON null.

func (d *Database) getBlock(ctx context.Context, where string, arg interface{}) (*BlockRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s.blocks WHERE %s", d.schema, where)

	var row BlockRow
	var err error
	if arg != nil {
		err = d.db.GetContext(ctx, &row, query, arg)
	} else {
		err = d.db.GetContext(ctx, &row, query)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return &row, nil
}

// BlockByID fetches a block by its hash.
func (d *Database) BlockByID(ctx context.Context, id []byte) (*BlockRow, error) {
	return d.getBlock(ctx, "block_id = $1", id)
}

// BlockByHeight fetches a block by height.
func (d *Database) BlockByHeight(ctx context.Context, height int64) (*BlockRow, error) {
	return d.getBlock(ctx, "header_height = $1", height)
}

// LastBlock fetches the highest block saved so far. Unlike the lookups by
// hash or height, an empty chain is an error here, not a missing row.
func (d *Database) LastBlock(ctx context.Context) (*BlockRow, error) {
	row, err := d.getBlock(ctx, "header_height = (SELECT MAX(header_height) FROM "+d.schema+".blocks)", nil)
	if err == nil && row == nil {
		return nil, errs.E(errs.DB, "no blocks saved yet")
	}
	return row, err
}

// LastBlocks fetches num blocks going down from the tip, skipping offset.
func (d *Database) LastBlocks(ctx context.Context, num, offset int) ([]BlockRow, error) {
	query := fmt.Sprintf(`SELECT * FROM %s.blocks
		ORDER BY header_height DESC LIMIT $1 OFFSET $2`, d.schema)

	var rows []BlockRow
	if err := d.db.SelectContext(ctx, &rows, query, num, offset); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// LastHeight returns the highest saved height, zero when the schema is
// empty. The indexer resumes from the next height.
func (d *Database) LastHeight(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(header_height), 0) FROM %s.blocks", d.schema)

	var height int64
	if err := d.db.GetContext(ctx, &height, query); err != nil {
		return 0, errs.Wrap(errs.DB, err)
	}
	return height, nil
}

// TxHashesByBlock lists the transactions of a block in block order.
func (d *Database) TxHashesByBlock(ctx context.Context, blockID []byte) ([]TxShortRow, error) {
	query := fmt.Sprintf(`SELECT hash, tx_type FROM %s.transactions
		WHERE block_id = $1 ORDER BY tx_index`, d.schema)

	var rows []TxShortRow
	if err := d.db.SelectContext(ctx, &rows, query, blockID); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// TxByHash fetches a transaction by its hash; nil when unknown.
func (d *Database) TxByHash(ctx context.Context, hash []byte) (*TxRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s.transactions WHERE hash = $1", d.schema)

	var row TxRow
	err := d.db.GetContext(ctx, &row, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return &row, nil
}

// TxsByAddress lists the transactions whose transfer payload touches the
// address as source or target.
func (d *Database) TxsByAddress(ctx context.Context, addr string) ([]TxRow, error) {
	query := fmt.Sprintf(`SELECT t.* FROM %[1]s.transactions t
		JOIN %[1]s.tx_transfer tr ON tr.tx_id = t.hash
		WHERE tr.source = $1 OR tr.target = $1`, d.schema)

	var rows []TxRow
	if err := d.db.SelectContext(ctx, &rows, query, addr); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// ShieldedTransfers lists every transfer into or out of the shielded
// pool.
func (d *Database) ShieldedTransfers(ctx context.Context) ([]TransferRow, error) {
	query := fmt.Sprintf(`SELECT * FROM %s.tx_transfer
		WHERE source = $1 OR target = $1`, d.schema)

	var rows []TransferRow
	if err := d.db.SelectContext(ctx, &rows, query, MaspAddr); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// ProposalVotes lists the votes cast on a governance proposal.
func (d *Database) ProposalVotes(ctx context.Context, id uint64) ([]ProposalVoteRow, error) {
	query := fmt.Sprintf(`SELECT * FROM %s.vote_proposal
		WHERE vote_proposal_id = $1`, d.schema)

	var rows []ProposalVoteRow
	if err := d.db.SelectContext(ctx, &rows, query, proposalID(id)); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// ProposalDelegations lists the delegation addresses counted for a
// proposal's votes.
func (d *Database) ProposalDelegations(ctx context.Context, id uint64) ([]string, error) {
	query := fmt.Sprintf(`SELECT delegation_id FROM %s.delegations
		WHERE vote_proposal_id = $1`, d.schema)

	var rows []string
	if err := d.db.SelectContext(ctx, &rows, query, proposalID(id)); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	return rows, nil
}

// AccountUpdates aggregates the update history of an account.
func (d *Database) AccountUpdates(ctx context.Context, accountID string) (*AccountUpdatesRow, error) {
	var out AccountUpdatesRow

	query := fmt.Sprintf(`SELECT COALESCE(ARRAY_AGG(threshold ORDER BY update_id), '{}')
		FROM %s.account_updates WHERE account_id = $1 AND threshold IS NOT NULL`, d.schema)
	if err := d.db.GetContext(ctx, &out.Thresholds, query, accountID); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}

	query = fmt.Sprintf(`SELECT COALESCE(ARRAY_AGG(vp_code_hash ORDER BY update_id), '{}')
		FROM %s.account_updates WHERE account_id = $1 AND vp_code_hash IS NOT NULL`, d.schema)
	if err := d.db.GetContext(ctx, &out.VpCodeHashes, query, accountID); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}

	query = fmt.Sprintf(`SELECT ARRAY_AGG(k.public_key) FROM %[1]s.account_updates u
		JOIN %[1]s.account_public_keys k ON k.update_id = u.update_id
		WHERE u.account_id = $1
		GROUP BY u.update_id ORDER BY u.update_id`, d.schema)
	if err := d.db.SelectContext(ctx, &out.PublicKeys, query, accountID); err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}

	return &out, nil
}

// ValidatorVotes counts the commit signatures a validator contributed
// inside [start, end]. Heights are inclusive.
func (d *Database) ValidatorVotes(ctx context.Context, validator []byte, start, end int64) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %[1]s.commit_signatures cs
		JOIN %[1]s.blocks b ON b.block_id = cs.block_id
		WHERE cs.validator_address = $1 AND b.header_height BETWEEN $2 AND $3`, d.schema)

	var count int64
	if err := d.db.GetContext(ctx, &count, query, validator, start, end); err != nil {
		return 0, errs.Wrap(errs.DB, err)
	}
	return count, nil
}
