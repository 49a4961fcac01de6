package db

import "github.com/lib/pq"

// BlockRow mirrors the blocks table. Nullable columns scan into pointers
// or nil slices.
type BlockRow struct {
	BlockID                           []byte `db:"block_id"`
	HeaderVersionApp                  int64  `db:"header_version_app"`
	HeaderVersionBlock                int64  `db:"header_version_block"`
	HeaderChainID                     string `db:"header_chain_id"`
	HeaderHeight                      int64  `db:"header_height"`
	HeaderTime                        string `db:"header_time"`
	HeaderLastBlockIDHash             []byte `db:"header_last_block_id_hash"`
	HeaderLastBlockIDPartsHeaderTotal *int64 `db:"header_last_block_id_parts_header_total"`
	HeaderLastBlockIDPartsHeaderHash  []byte `db:"header_last_block_id_parts_header_hash"`
	HeaderLastCommitHash              []byte `db:"header_last_commit_hash"`
	HeaderDataHash                    []byte `db:"header_data_hash"`
	HeaderValidatorsHash              []byte `db:"header_validators_hash"`
	HeaderNextValidatorsHash          []byte `db:"header_next_validators_hash"`
	HeaderConsensusHash               []byte `db:"header_consensus_hash"`
	HeaderAppHash                     string `db:"header_app_hash"`
	HeaderLastResultsHash             []byte `db:"header_last_results_hash"`
	HeaderEvidenceHash                []byte `db:"header_evidence_hash"`
	HeaderProposerAddress             string `db:"header_proposer_address"`
	CommitHeight                      *int64 `db:"commit_height"`
	CommitRound                       *int64 `db:"commit_round"`
	CommitBlockIDHash                 []byte `db:"commit_block_id_hash"`
	CommitBlockIDPartsHeaderTotal     *int64 `db:"commit_block_id_parts_header_total"`
	CommitBlockIDPartsHeaderHash      []byte `db:"commit_block_id_parts_header_hash"`
}

// TxRow mirrors the transactions table.
type TxRow struct {
	Hash                []byte  `db:"hash"`
	BlockID             []byte  `db:"block_id"`
	TxIndex             int32   `db:"tx_index"`
	TxType              string  `db:"tx_type"`
	WrapperID           []byte  `db:"wrapper_id"`
	FeeAmountPerGasUnit *string `db:"fee_amount_per_gas_unit"`
	FeeToken            *string `db:"fee_token"`
	GasLimitMultiplier  *int64  `db:"gas_limit_multiplier"`
	Code                []byte  `db:"code"`
	CodeType            *string `db:"code_type"`
	Data                []byte  `db:"data"`
	Memo                []byte  `db:"memo"`
	ReturnCode          *int64  `db:"return_code"`
}

// TxShortRow lists a transaction inside a block response.
type TxShortRow struct {
	Hash   []byte `db:"hash"`
	TxType string `db:"tx_type"`
}

// TransferRow mirrors the tx_transfer table.
type TransferRow struct {
	TxID     []byte  `db:"tx_id"`
	Source   string  `db:"source"`
	Target   string  `db:"target"`
	Token    string  `db:"token"`
	Amount   string  `db:"amount"`
	Key      *string `db:"key"`
	Shielded []byte  `db:"shielded"`
}

// ProposalVoteRow mirrors the vote_proposal table.
type ProposalVoteRow struct {
	VoteProposalID []byte `db:"vote_proposal_id"`
	Vote           string `db:"vote"`
	Voter          string `db:"voter"`
	TxID           []byte `db:"tx_id"`
}

// AccountUpdatesRow aggregates the update history of an established
// account: every threshold and vp code hash ever set, plus the public key
// set of each update.
type AccountUpdatesRow struct {
	Thresholds   pq.Int64Array
	VpCodeHashes pq.ByteaArray
	PublicKeys   []pq.StringArray
}
