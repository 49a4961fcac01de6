package server

import (
	"net/http"
	"strconv"

	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/errs"
)

// AggregateShielded nets the shielded pool balance per token: transfers
// into the pool add, transfers out subtract. Self-transfers inside the
// pool move nothing and are skipped.
func AggregateShielded(transfers []db.TransferRow) (map[string]float64, error) {
	assets := make(map[string]float64)
	for _, t := range transfers {
		if t.Source == t.Target {
			continue
		}
		amount, err := strconv.ParseFloat(t.Amount, 64)
		if err != nil {
			return nil, errs.Wrap(errs.ParseFloat, err)
		}
		switch db.MaspAddr {
		case t.Target:
			assets[t.Token] += amount
		case t.Source:
			assets[t.Token] -= amount
		}
	}
	return assets, nil
}

type shieldedAssetsResponse struct {
	ShieldedAssets map[string]float64 `json:"shielded_assets"`
}

func (s *Server) shieldedAssets(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.store.ShieldedTransfers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	assets, err := AggregateShielded(transfers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, shieldedAssetsResponse{ShieldedAssets: assets})
}
