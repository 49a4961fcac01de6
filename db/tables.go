package db

import (
	"context"
	"fmt"

	"github.com/Zondax/namadexer/errs"
)

// Table definitions. Hashes and addresses are stored as raw bytes;
// amounts and timestamps the chain renders as decimal strings stay TEXT so
// no precision is lost.
var tableDefs = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.blocks (
		block_id BYTEA NOT NULL,
		header_version_app INTEGER NOT NULL,
		header_version_block INTEGER NOT NULL,
		header_chain_id TEXT NOT NULL,
		header_height INTEGER NOT NULL,
		header_time TEXT NOT NULL,
		header_last_block_id_hash BYTEA,
		header_last_block_id_parts_header_total INTEGER,
		header_last_block_id_parts_header_hash BYTEA,
		header_last_commit_hash BYTEA,
		header_data_hash BYTEA,
		header_validators_hash BYTEA NOT NULL,
		header_next_validators_hash BYTEA NOT NULL,
		header_consensus_hash BYTEA NOT NULL,
		header_app_hash TEXT NOT NULL,
		header_last_results_hash BYTEA,
		header_evidence_hash BYTEA,
		header_proposer_address TEXT NOT NULL,
		commit_height INTEGER,
		commit_round INTEGER,
		commit_block_id_hash BYTEA,
		commit_block_id_parts_header_total INTEGER,
		commit_block_id_parts_header_hash BYTEA
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.commit_signatures (
		block_id BYTEA NOT NULL,
		block_id_flag INTEGER NOT NULL,
		validator_address BYTEA,
		timestamp TEXT,
		signature BYTEA
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.evidences (
		block_id BYTEA NOT NULL,
		height INTEGER NOT NULL,
		time TEXT,
		address BYTEA,
		total_voting_power TEXT,
		validator_power TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.transactions (
		hash BYTEA NOT NULL,
		block_id BYTEA NOT NULL,
		tx_index INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		wrapper_id BYTEA,
		fee_amount_per_gas_unit TEXT,
		fee_token TEXT,
		gas_limit_multiplier BIGINT,
		code BYTEA,
		code_type TEXT,
		data BYTEA,
		memo BYTEA,
		return_code INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.tx_transfer (
		tx_id BYTEA NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		key TEXT,
		shielded BYTEA
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.tx_bond (
		tx_id BYTEA NOT NULL,
		validator TEXT NOT NULL,
		amount TEXT NOT NULL,
		source TEXT,
		bond BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.tx_bridge_pool (
		tx_id BYTEA NOT NULL,
		asset TEXT NOT NULL,
		recipient TEXT NOT NULL,
		sender TEXT NOT NULL,
		amount TEXT NOT NULL,
		gas_amount TEXT NOT NULL,
		payer TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.vote_proposal (
		vote_proposal_id BYTEA NOT NULL,
		vote TEXT NOT NULL,
		voter TEXT NOT NULL,
		tx_id BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.delegations (
		delegation_id TEXT NOT NULL,
		vote_proposal_id BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.account_updates (
		update_id SERIAL PRIMARY KEY,
		account_id TEXT NOT NULL,
		vp_code_hash BYTEA,
		threshold INTEGER,
		tx_id BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.account_public_keys (
		update_id INTEGER NOT NULL,
		public_key TEXT NOT NULL
	)`,
}

// CreateTables creates the chain schema and every table in it. Statements
// are idempotent, so running at every startup is safe.
func (d *Database) CreateTables(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx,
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.schema)); err != nil {
		return errs.Wrap(errs.DB, err)
	}
	for _, def := range tableDefs {
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf(def, d.schema)); err != nil {
			return errs.Wrap(errs.DB, err)
		}
	}
	log.WithField("schema", d.schema).Info("tables ready")
	return nil
}
