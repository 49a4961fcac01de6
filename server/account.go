package server

import (
	"encoding/hex"
	"net/http"

	"github.com/gorilla/mux"
)

// AccountUpdatesInfo is the update history of an established account:
// every threshold and vp code hash ever set, and the public key set of
// each update.
type AccountUpdatesInfo struct {
	AccountID    string     `json:"account_id"`
	Thresholds   []int64    `json:"thresholds"`
	VpCodeHashes []string   `json:"vp_code_hashes"`
	PublicKeys   [][]string `json:"public_keys"`
}

func (s *Server) accountUpdates(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account"]

	row, err := s.store.AccountUpdates(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	info := AccountUpdatesInfo{
		AccountID:    accountID,
		Thresholds:   []int64{},
		VpCodeHashes: []string{},
		PublicKeys:   [][]string{},
	}
	info.Thresholds = append(info.Thresholds, row.Thresholds...)
	for _, h := range row.VpCodeHashes {
		info.VpCodeHashes = append(info.VpCodeHashes, hex.EncodeToString(h))
	}
	for _, keys := range row.PublicKeys {
		info.PublicKeys = append(info.PublicKeys, append([]string{}, keys...))
	}
	writeJSON(w, info)
}
