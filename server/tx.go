package server

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/types"
)

// TxInfo is the API view of a transaction row. Tx carries the decoded
// payload for transaction kinds the indexer understands.
type TxInfo struct {
	Hash                string      `json:"hash"`
	BlockID             string      `json:"block_id"`
	TxType              string      `json:"tx_type"`
	WrapperID           string      `json:"wrapper_id,omitempty"`
	FeeAmountPerGasUnit *string     `json:"fee_amount_per_gas_unit,omitempty"`
	FeeToken            *string     `json:"fee_token,omitempty"`
	GasLimitMultiplier  *int64      `json:"gas_limit_multiplier,omitempty"`
	Code                string      `json:"code,omitempty"`
	CodeType            *string     `json:"code_type,omitempty"`
	Data                string      `json:"data,omitempty"`
	Memo                string      `json:"memo,omitempty"`
	ReturnCode          *int64      `json:"return_code,omitempty"`
	Tx                  interface{} `json:"tx,omitempty"`
}

// payloadDecoders maps a code type to the routine producing its decoded
// JSON view. Kinds missing here are served as raw data only.
var payloadDecoders = map[string]func([]byte) (interface{}, error){
	"tx_transfer":                    decodeAs(types.DecodeTransfer),
	"tx_bond":                        decodeAs(types.DecodeBond),
	"tx_unbond":                      decodeAs(types.DecodeUnbond),
	"tx_withdraw":                    decodeAs(types.DecodeWithdraw),
	"tx_claim_rewards":               decodeAs(types.DecodeClaimRewards),
	"tx_redelegate":                  decodeAs(types.DecodeRedelegate),
	"tx_vote_proposal":               decodeAs(types.DecodeVoteProposal),
	"tx_init_proposal":               decodeAs(types.DecodeInitProposal),
	"tx_init_account":                decodeAs(types.DecodeInitAccount),
	"tx_init_validator":              decodeAs(types.DecodeInitValidator),
	"tx_update_account":              decodeAs(types.DecodeUpdateAccount),
	"tx_ibc":                         decodeAs(types.DecodeIbc),
	"tx_bridge_pool":                 decodeAs(types.DecodePendingTransfer),
	"tx_become_validator":            decodeAs(types.DecodeBecomeValidator),
	"tx_change_consensus_key":        decodeAs(types.DecodeChangeConsensusKey),
	"tx_change_validator_commission": decodeAs(types.DecodeChangeValidatorCommission),
	"tx_change_validator_metadata":   decodeAs(types.DecodeChangeValidatorMetadata),
	"tx_update_steward_commission":   decodeAs(types.DecodeUpdateStewardCommission),
	"tx_reveal_pk":                   decodeString(types.DecodePublicKey),
	"tx_resign_steward":              decodeString(types.DecodeAddress),
	"tx_unjail_validator":            decodeString(types.DecodeAddress),
	"tx_deactivate_validator":        decodeString(types.DecodeAddress),
	"tx_reactivate_validator":        decodeString(types.DecodeAddress),
}

func decodeAs[T any](decode func([]byte) (*T, error)) func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		v, err := decode(data)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeString(decode func([]byte) (string, error)) func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) { return decode(data) }
}

func txInfoFromRow(row *db.TxRow) *TxInfo {
	info := &TxInfo{
		Hash:                hex.EncodeToString(row.Hash),
		BlockID:             hex.EncodeToString(row.BlockID),
		TxType:              row.TxType,
		WrapperID:           hex.EncodeToString(row.WrapperID),
		FeeAmountPerGasUnit: row.FeeAmountPerGasUnit,
		FeeToken:            row.FeeToken,
		GasLimitMultiplier:  row.GasLimitMultiplier,
		Code:                hex.EncodeToString(row.Code),
		CodeType:            row.CodeType,
		Data:                hex.EncodeToString(row.Data),
		Memo:                hex.EncodeToString(row.Memo),
		ReturnCode:          row.ReturnCode,
	}

	// A payload that no longer decodes is served raw rather than hiding
	// the whole transaction.
	if row.CodeType != nil && len(row.Data) > 0 {
		if decode, ok := payloadDecoders[*row.CodeType]; ok {
			decoded, err := decode(row.Data)
			if err != nil {
				log.WithError(err).WithField("hash", info.Hash).Warn("stored payload does not decode")
			} else {
				info.Tx = decoded
			}
		}
	}
	return info
}

func (s *Server) txByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := decodeHex(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, err)
		return
	}

	row, err := s.store.TxByHash(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeJSON(w, nil)
		return
	}

	writeJSON(w, txInfoFromRow(row))
}

func (s *Server) txsByAddress(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.TxsByAddress(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, err)
		return
	}

	infos := []TxInfo{}
	for i := range rows {
		infos = append(infos, *txInfoFromRow(&rows[i]))
	}
	writeJSON(w, infos)
}

// ProposalVote is one vote in a vote_proposal response.
type ProposalVote struct {
	Vote  string `json:"vote"`
	Voter string `json:"voter"`
	TxID  string `json:"tx_id"`
}

// ProposalInfo aggregates the recorded votes on a governance proposal.
type ProposalInfo struct {
	ProposalID  uint64         `json:"proposal_id"`
	Votes       []ProposalVote `json:"votes"`
	Delegations []string       `json:"delegations"`
}

func (s *Server) voteProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, errs.Wrap(errs.ParseInt, err))
		return
	}

	votes, err := s.store.ProposalVotes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	delegations, err := s.store.ProposalDelegations(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if delegations == nil {
		delegations = []string{}
	}

	info := ProposalInfo{ProposalID: id, Votes: []ProposalVote{}, Delegations: delegations}
	for _, v := range votes {
		info.Votes = append(info.Votes, ProposalVote{
			Vote:  v.Vote,
			Voter: v.Voter,
			TxID:  hex.EncodeToString(v.TxID),
		})
	}
	writeJSON(w, info)
}
