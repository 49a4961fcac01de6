package db

import (
	"context"
	"fmt"

	"github.com/Zondax/namadexer/errs"
)

// Indexes and constraints are created only after the initial sync has
// caught up with the chain; keeping them off during the bulk load keeps
// inserts cheap. Uniqueness lives here too, not in the table DDL, for the
// same reason.
var indexDefs = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_blocks_id ON %[1]s.blocks (block_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_blocks_height ON %[1]s.blocks (header_height)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_transactions_block_id ON %[1]s.transactions (block_id)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_commit_signatures_validator ON %[1]s.commit_signatures (validator_address)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_tx_transfer_source ON %[1]s.tx_transfer (source)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_tx_transfer_target ON %[1]s.tx_transfer (target)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_tx_bond_validator ON %[1]s.tx_bond (validator)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_tx_bond_source ON %[1]s.tx_bond (source)`,
	`CREATE INDEX IF NOT EXISTS ix_%[1]s_vote_proposal_id ON %[1]s.vote_proposal (vote_proposal_id)`,
}

// Constraints have no IF NOT EXISTS form; CreateIndexes checks HasIndexes
// before running them. Ordering matters: the foreign key needs the unique
// block_id index above.
var constraintDefs = []string{
	`ALTER TABLE %[1]s.transactions ADD PRIMARY KEY (hash)`,
	`ALTER TABLE %[1]s.transactions ADD CONSTRAINT fk_transactions_block_id
		FOREIGN KEY (block_id) REFERENCES %[1]s.blocks (block_id)`,
	`ALTER TABLE %[1]s.tx_transfer ADD PRIMARY KEY (tx_id)`,
	`ALTER TABLE %[1]s.tx_bond ADD PRIMARY KEY (tx_id)`,
	`ALTER TABLE %[1]s.tx_bridge_pool ADD PRIMARY KEY (tx_id)`,
}

// CreateIndexes builds the query indexes and integrity constraints. A
// no-op when they exist already.
func (d *Database) CreateIndexes(ctx context.Context) error {
	done, err := d.HasIndexes(ctx)
	if err != nil || done {
		return err
	}

	for _, def := range indexDefs {
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf(def, d.schema)); err != nil {
			return errs.Wrap(errs.DB, err)
		}
	}
	for _, def := range constraintDefs {
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf(def, d.schema)); err != nil {
			return errs.Wrap(errs.DB, err)
		}
	}
	log.WithField("schema", d.schema).Info("indexes and constraints ready")
	return nil
}

// HasIndexes reports whether the query indexes exist already, so the
// indexer can skip rebuilding them after a restart.
func (d *Database) HasIndexes(ctx context.Context) (bool, error) {
	query := `SELECT COUNT(*) FROM pg_indexes WHERE schemaname = $1 AND indexname = $2`

	var count int
	name := fmt.Sprintf("ux_%s_blocks_height", d.schema)
	if err := d.db.GetContext(ctx, &count, query, d.schema, name); err != nil {
		return false, errs.Wrap(errs.DB, err)
	}
	return count > 0, nil
}
