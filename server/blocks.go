package server

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/errs"
)

// Cap on /block/last page size.
const maxLastBlocks = 100

type PartsInfo struct {
	Total int64  `json:"total"`
	Hash  string `json:"hash"`
}

type BlockIDInfo struct {
	Hash  string    `json:"hash"`
	Parts PartsInfo `json:"parts"`
}

type VersionInfo struct {
	App   int64 `json:"app"`
	Block int64 `json:"block"`
}

type HeaderInfo struct {
	Version            VersionInfo  `json:"version"`
	ChainID            string       `json:"chain_id"`
	Height             int64        `json:"height"`
	Time               string       `json:"time"`
	LastBlockID        *BlockIDInfo `json:"last_block_id,omitempty"`
	LastCommitHash     string       `json:"last_commit_hash,omitempty"`
	DataHash           string       `json:"data_hash,omitempty"`
	ValidatorsHash     string       `json:"validators_hash"`
	NextValidatorsHash string       `json:"next_validators_hash"`
	ConsensusHash      string       `json:"consensus_hash"`
	AppHash            string       `json:"app_hash"`
	LastResultsHash    string       `json:"last_results_hash,omitempty"`
	EvidenceHash       string       `json:"evidence_hash,omitempty"`
	ProposerAddress    string       `json:"proposer_address"`
}

type CommitInfo struct {
	Height  int64       `json:"height"`
	Round   int64       `json:"round"`
	BlockID BlockIDInfo `json:"block_id"`
}

type TxShort struct {
	HashID string `json:"hash_id"`
	TxType string `json:"tx_type"`
}

// BlockInfo is the API view of a block row plus the hashes of its
// transactions.
type BlockInfo struct {
	BlockID    string      `json:"block_id"`
	Header     HeaderInfo  `json:"header"`
	LastCommit *CommitInfo `json:"last_commit"`
	TxHashes   []TxShort   `json:"tx_hashes"`
}

// blockInfoFromRow rebuilds the block view. Rows are written atomically,
// so a half-present last_block_id or commit means the row is corrupt.
func blockInfoFromRow(row *db.BlockRow, txs []db.TxShortRow) (*BlockInfo, error) {
	info := &BlockInfo{
		BlockID: hex.EncodeToString(row.BlockID),
		Header: HeaderInfo{
			Version:            VersionInfo{App: row.HeaderVersionApp, Block: row.HeaderVersionBlock},
			ChainID:            row.HeaderChainID,
			Height:             row.HeaderHeight,
			Time:               row.HeaderTime,
			LastCommitHash:     hex.EncodeToString(row.HeaderLastCommitHash),
			DataHash:           hex.EncodeToString(row.HeaderDataHash),
			ValidatorsHash:     hex.EncodeToString(row.HeaderValidatorsHash),
			NextValidatorsHash: hex.EncodeToString(row.HeaderNextValidatorsHash),
			ConsensusHash:      hex.EncodeToString(row.HeaderConsensusHash),
			AppHash:            row.HeaderAppHash,
			LastResultsHash:    hex.EncodeToString(row.HeaderLastResultsHash),
			EvidenceHash:       hex.EncodeToString(row.HeaderEvidenceHash),
			ProposerAddress:    row.HeaderProposerAddress,
		},
		TxHashes: []TxShort{},
	}

	if len(row.HeaderLastBlockIDHash) > 0 {
		if row.HeaderLastBlockIDPartsHeaderTotal == nil || len(row.HeaderLastBlockIDPartsHeaderHash) == 0 {
			return nil, errs.E(errs.InvalidBlockData,
				"block %d: incomplete last_block_id", row.HeaderHeight)
		}
		info.Header.LastBlockID = &BlockIDInfo{
			Hash: hex.EncodeToString(row.HeaderLastBlockIDHash),
			Parts: PartsInfo{
				Total: *row.HeaderLastBlockIDPartsHeaderTotal,
				Hash:  hex.EncodeToString(row.HeaderLastBlockIDPartsHeaderHash),
			},
		}
	}

	if row.CommitHeight != nil {
		if row.CommitRound == nil || len(row.CommitBlockIDHash) == 0 ||
			row.CommitBlockIDPartsHeaderTotal == nil || len(row.CommitBlockIDPartsHeaderHash) == 0 {
			return nil, errs.E(errs.InvalidBlockData,
				"block %d: incomplete commit", row.HeaderHeight)
		}
		info.LastCommit = &CommitInfo{
			Height: *row.CommitHeight,
			Round:  *row.CommitRound,
			BlockID: BlockIDInfo{
				Hash: hex.EncodeToString(row.CommitBlockIDHash),
				Parts: PartsInfo{
					Total: *row.CommitBlockIDPartsHeaderTotal,
					Hash:  hex.EncodeToString(row.CommitBlockIDPartsHeaderHash),
				},
			},
		}
	}

	for _, tx := range txs {
		info.TxHashes = append(info.TxHashes, TxShort{
			HashID: hex.EncodeToString(tx.Hash),
			TxType: tx.TxType,
		})
	}
	return info, nil
}

func (s *Server) blockInfo(ctx context.Context, row *db.BlockRow) (*BlockInfo, error) {
	txs, err := s.store.TxHashesByBlock(ctx, row.BlockID)
	if err != nil {
		return nil, err
	}
	return blockInfoFromRow(row, txs)
}

func (s *Server) blockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		writeError(w, errs.Wrap(errs.ParseInt, err))
		return
	}

	row, err := s.store.BlockByHeight(r.Context(), height)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeJSON(w, nil)
		return
	}

	info, err := s.blockInfo(r.Context(), row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, info)
}

func (s *Server) blockByHash(w http.ResponseWriter, r *http.Request) {
	id, err := decodeHex(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, err)
		return
	}

	row, err := s.store.BlockByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeJSON(w, nil)
		return
	}

	info, err := s.blockInfo(r.Context(), row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, info)
}

// lastBlocks serves the tip block as a single object, or a descending
// array when ?num is given.
func (s *Server) lastBlocks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("num") == "" {
		// An empty chain surfaces as a store error here, unlike the
		// lookups by hash or height.
		row, err := s.store.LastBlock(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		info, err := s.blockInfo(r.Context(), row)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, info)
		return
	}

	num, err := queryInt(r, "num", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if num < 1 {
		num = 1
	}
	if num > maxLastBlocks {
		num = maxLastBlocks
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.store.LastBlocks(r.Context(), num, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	infos := []BlockInfo{}
	for i := range rows {
		info, err := s.blockInfo(r.Context(), &rows[i])
		if err != nil {
			writeError(w, err)
			return
		}
		infos = append(infos, *info)
	}
	writeJSON(w, infos)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrap(errs.ParseInt, err)
	}
	return v, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.Hex, err)
	}
	return out, nil
}
