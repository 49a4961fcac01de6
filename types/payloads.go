package types

import (
	"github.com/near/borsh-go"

	"github.com/Zondax/namadexer/errs"
)

// Transfer moves tokens between two addresses. Transfers touching the
// shielded pool carry the MASP address as source or target.
type Transfer struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Token    string  `json:"token"`
	Amount   string  `json:"amount"`
	Key      *string `json:"key,omitempty"`
	Shielded []byte  `json:"shielded,omitempty"`
}

// Bond delegates tokens to a validator; Unbond is the same shape with the
// opposite direction.
type Bond struct {
	Validator string  `json:"validator"`
	Amount    string  `json:"amount"`
	Source    *string `json:"source,omitempty"`
}

type Unbond = Bond

type Withdraw struct {
	Validator string  `json:"validator"`
	Source    *string `json:"source,omitempty"`
}

type ClaimRewards struct {
	Validator string  `json:"validator"`
	Source    *string `json:"source,omitempty"`
}

type Redelegate struct {
	SrcValidator  string `json:"src_validator"`
	DestValidator string `json:"dest_validator"`
	Owner         string `json:"owner"`
	Amount        string `json:"amount"`
}

// VoteProposal records a governance vote and the delegations it counts
// for.
type VoteProposal struct {
	ID          uint64   `json:"id"`
	Vote        string   `json:"vote"`
	Voter       string   `json:"voter"`
	Delegations []string `json:"delegations"`
}

type InitProposal struct {
	ID               uint64 `json:"id"`
	Content          string `json:"content"`
	Author           string `json:"author"`
	VotingStartEpoch uint64 `json:"voting_start_epoch"`
	VotingEndEpoch   uint64 `json:"voting_end_epoch"`
	GraceEpoch       uint64 `json:"grace_epoch"`
}

type InitAccount struct {
	PublicKeys []string `json:"public_keys"`
	VpCodeHash [32]byte `json:"vp_code_hash"`
	Threshold  uint8    `json:"threshold"`
}

// InitValidator registers a new validator together with its key set.
type InitValidator struct {
	AccountKeys             []string `json:"account_keys"`
	Threshold               uint8    `json:"threshold"`
	ConsensusKey            string   `json:"consensus_key"`
	EthColdKey              string   `json:"eth_cold_key"`
	EthHotKey               string   `json:"eth_hot_key"`
	ProtocolKey             string   `json:"protocol_key"`
	CommissionRate          string   `json:"commission_rate"`
	MaxCommissionRateChange string   `json:"max_commission_rate_change"`
	ValidatorVpCodeHash     [32]byte `json:"validator_vp_code_hash"`
}

// Ibc carries an IBC message. The payload is protobuf-encoded by the
// chain, not Borsh, so it stays opaque and is rendered raw.
type Ibc struct {
	Raw []byte `json:"raw"`
}

// UpdateAccount changes an established account; every field except Addr is
// optional.
type UpdateAccount struct {
	Addr       string   `json:"addr"`
	VpCodeHash []byte   `json:"vp_code_hash,omitempty"`
	PublicKeys []string `json:"public_keys,omitempty"`
	Threshold  *uint8   `json:"threshold,omitempty"`
}

// PendingTransfer queues an asset transfer over the Ethereum bridge pool.
type PendingTransfer struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Amount    string `json:"amount"`
	GasAmount string `json:"gas_amount"`
	Payer     string `json:"payer"`
}

type StewardCommission struct {
	Validator string `json:"validator"`
	Rate      string `json:"rate"`
}

type UpdateStewardCommission struct {
	Steward    string              `json:"steward"`
	Commission []StewardCommission `json:"commission"`
}

type BecomeValidator struct {
	Address                 string  `json:"address"`
	ConsensusKey            string  `json:"consensus_key"`
	EthColdKey              string  `json:"eth_cold_key"`
	EthHotKey               string  `json:"eth_hot_key"`
	ProtocolKey             string  `json:"protocol_key"`
	CommissionRate          string  `json:"commission_rate"`
	MaxCommissionRateChange string  `json:"max_commission_rate_change"`
	Email                   string  `json:"email"`
	Description             *string `json:"description,omitempty"`
	Website                 *string `json:"website,omitempty"`
	DiscordHandle           *string `json:"discord_handle,omitempty"`
	Avatar                  *string `json:"avatar,omitempty"`
}

type ChangeConsensusKey struct {
	Validator    string `json:"validator"`
	ConsensusKey string `json:"consensus_key"`
}

type ChangeValidatorCommission struct {
	Validator string `json:"validator"`
	NewRate   string `json:"new_rate"`
}

type ChangeValidatorMetadata struct {
	Validator      string  `json:"validator"`
	Email          *string `json:"email,omitempty"`
	Description    *string `json:"description,omitempty"`
	Website        *string `json:"website,omitempty"`
	DiscordHandle  *string `json:"discord_handle,omitempty"`
	Avatar         *string `json:"avatar,omitempty"`
	CommissionRate *string `json:"commission_rate,omitempty"`
}

func unmarshal[T any](data []byte) (*T, error) {
	var v T
	if err := borsh.Deserialize(&v, data); err != nil {
		return nil, errs.E(errs.InvalidTxData, "payload: %v", err)
	}
	return &v, nil
}

func DecodeTransfer(data []byte) (*Transfer, error)       { return unmarshal[Transfer](data) }
func DecodeBond(data []byte) (*Bond, error)               { return unmarshal[Bond](data) }
func DecodeUnbond(data []byte) (*Unbond, error)           { return unmarshal[Unbond](data) }
func DecodeWithdraw(data []byte) (*Withdraw, error)       { return unmarshal[Withdraw](data) }
func DecodeClaimRewards(data []byte) (*ClaimRewards, error) {
	return unmarshal[ClaimRewards](data)
}
func DecodeRedelegate(data []byte) (*Redelegate, error)     { return unmarshal[Redelegate](data) }
func DecodeVoteProposal(data []byte) (*VoteProposal, error) { return unmarshal[VoteProposal](data) }
func DecodeInitProposal(data []byte) (*InitProposal, error) { return unmarshal[InitProposal](data) }
func DecodeInitAccount(data []byte) (*InitAccount, error)   { return unmarshal[InitAccount](data) }
func DecodeInitValidator(data []byte) (*InitValidator, error) {
	return unmarshal[InitValidator](data)
}
func DecodeUpdateAccount(data []byte) (*UpdateAccount, error) {
	return unmarshal[UpdateAccount](data)
}
func DecodePendingTransfer(data []byte) (*PendingTransfer, error) {
	return unmarshal[PendingTransfer](data)
}
func DecodeUpdateStewardCommission(data []byte) (*UpdateStewardCommission, error) {
	return unmarshal[UpdateStewardCommission](data)
}
func DecodeBecomeValidator(data []byte) (*BecomeValidator, error) {
	return unmarshal[BecomeValidator](data)
}
func DecodeChangeConsensusKey(data []byte) (*ChangeConsensusKey, error) {
	return unmarshal[ChangeConsensusKey](data)
}
func DecodeChangeValidatorCommission(data []byte) (*ChangeValidatorCommission, error) {
	return unmarshal[ChangeValidatorCommission](data)
}
func DecodeChangeValidatorMetadata(data []byte) (*ChangeValidatorMetadata, error) {
	return unmarshal[ChangeValidatorMetadata](data)
}

// DecodeIbc wraps an IBC payload. There is nothing to parse beyond
// checking it is present; the message itself is validated by the chain.
func DecodeIbc(data []byte) (*Ibc, error) {
	if len(data) == 0 {
		return nil, errs.E(errs.InvalidTxData, "empty ibc payload")
	}
	return &Ibc{Raw: data}, nil
}

// DecodeAddress parses payloads that consist of a single address
// (tx_resign_steward, tx_unjail_validator, validator (de)activation).
func DecodeAddress(data []byte) (string, error) {
	addr, err := unmarshal[string](data)
	if err != nil {
		return "", err
	}
	return *addr, nil
}

// DecodePublicKey parses a tx_reveal_pk payload.
func DecodePublicKey(data []byte) (string, error) {
	pk, err := unmarshal[string](data)
	if err != nil {
		return "", err
	}
	return *pk, nil
}

// EncodePayload is the test/fixture-side inverse of the Decode helpers.
func EncodePayload(v interface{}) ([]byte, error) {
	out, err := borsh.Serialize(v)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidTxData, err)
	}
	return out, nil
}
