// Package server exposes the indexed chain over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/Zondax/namadexer/config"
	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/metrics"
)

var log = logrus.WithField("module", "server")

// Store is the read-side surface the handlers need. Satisfied by
// db.Database; tests swap in a fake.
type Store interface {
	BlockByID(ctx context.Context, id []byte) (*db.BlockRow, error)
	BlockByHeight(ctx context.Context, height int64) (*db.BlockRow, error)
	LastBlock(ctx context.Context) (*db.BlockRow, error)
	LastBlocks(ctx context.Context, num, offset int) ([]db.BlockRow, error)
	LastHeight(ctx context.Context) (int64, error)
	TxHashesByBlock(ctx context.Context, blockID []byte) ([]db.TxShortRow, error)
	TxByHash(ctx context.Context, hash []byte) (*db.TxRow, error)
	TxsByAddress(ctx context.Context, addr string) ([]db.TxRow, error)
	ShieldedTransfers(ctx context.Context) ([]db.TransferRow, error)
	ProposalVotes(ctx context.Context, id uint64) ([]db.ProposalVoteRow, error)
	ProposalDelegations(ctx context.Context, id uint64) ([]string, error)
	AccountUpdates(ctx context.Context, accountID string) (*db.AccountUpdatesRow, error)
	ValidatorVotes(ctx context.Context, validator []byte, start, end int64) (int64, error)
}

// Server routes API requests to the store.
type Server struct {
	store Store
	http  *http.Server
}

// New wires the routes and builds the HTTP server. The metrics registry is
// served on the same listener under /metrics.
func New(store Store, cfg config.ServerConfig, m *metrics.Metrics) *Server {
	s := &Server{store: store}

	r := mux.NewRouter()
	r.HandleFunc("/block/height/{height}", s.blockByHeight).Methods(http.MethodGet)
	r.HandleFunc("/block/hash/{hash}", s.blockByHash).Methods(http.MethodGet)
	r.HandleFunc("/block/last", s.lastBlocks).Methods(http.MethodGet)
	r.HandleFunc("/tx/vote_proposal/{id}", s.voteProposal).Methods(http.MethodGet)
	r.HandleFunc("/tx/shielded", s.shieldedAssets).Methods(http.MethodGet)
	r.HandleFunc("/tx/{hash}", s.txByHash).Methods(http.MethodGet)
	r.HandleFunc("/address/{address}", s.txsByAddress).Methods(http.MethodGet)
	r.HandleFunc("/account/updates/{account}", s.accountUpdates).Methods(http.MethodGet)
	r.HandleFunc("/validator/{address}/uptime", s.validatorUptime).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}

	var c *cors.Cors
	if len(cfg.CorsAllowOrigins) > 0 {
		c = cors.New(cors.Options{AllowedOrigins: cfg.CorsAllowOrigins})
	} else {
		c = cors.Default()
	}

	s.http = &http.Server{
		Addr:    cfg.Address(),
		Handler: c.Handler(r),
	}
	return s
}

// Handler exposes the routed handler; used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.http.Addr).Info("serving api")
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return errs.Wrap(errs.IO, err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encoding response")
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	log.WithError(err).WithField("status", status).Warn("request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Code: status, Message: err.Error()}); err != nil {
		log.WithError(err).Error("encoding error response")
	}
}
