package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Zondax/namadexer/errs"
)

// Window used when the caller gives no height range.
const defaultUptimeWindow = 500

type uptimeResponse struct {
	Uptime float64 `json:"uptime"`
}

// Uptime is the fraction of blocks in the window the validator signed.
func Uptime(votes, window int64) float64 {
	if window <= 0 {
		return 0
	}
	u := float64(votes) / float64(window)
	if u > 1 {
		u = 1
	}
	return u
}

// validatorUptime reports signing participation over [start, end], or over
// the last 500 blocks when no range is given.
func (s *Server) validatorUptime(w http.ResponseWriter, r *http.Request) {
	validator, err := decodeHex(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, err)
		return
	}

	hasStart := r.URL.Query().Get("start") != ""
	hasEnd := r.URL.Query().Get("end") != ""

	var start, end int64
	switch {
	case hasStart && hasEnd:
		from, err := queryInt(r, "start", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		to, err := queryInt(r, "end", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		start, end = int64(from), int64(to)
		if end <= start {
			writeError(w, errs.E(errs.ParseInt, "end %d must be greater than start %d", end, start))
			return
		}
	case hasStart || hasEnd:
		writeError(w, errs.E(errs.ParseInt, "start and end must be given together"))
		return
	default:
		last, err := s.store.LastHeight(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		end = last
		start = end - defaultUptimeWindow
		if start < 0 {
			start = 0
		}
	}

	votes, err := s.store.ValidatorVotes(r.Context(), validator, start+1, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, uptimeResponse{Uptime: Uptime(votes, end-start)})
}
