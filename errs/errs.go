// Package errs defines the closed set of error kinds used across the
// indexer, the database layer and the HTTP server. Callers classify an
// error with Classify and map it to an HTTP status with HTTPStatus.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the known failure classes.
type Kind int

const (
	// Unknown is the zero Kind, used for errors produced outside this
	// package that were never classified.
	Unknown Kind = iota

	// InvalidBlockData marks a persisted block row that can no longer be
	// deserialized into a block view.
	InvalidBlockData

	// InvalidTxData marks a transaction envelope or payload that fails to
	// parse, or block results that are missing data a transaction needs.
	InvalidTxData

	// InvalidChecksum marks a malformed checksums source.
	InvalidChecksum

	// Tendermint marks a protocol-level failure in upstream data.
	Tendermint

	// TendermintRPC marks an RPC failure talking to the upstream node.
	TendermintRPC

	// DB marks a database-layer failure.
	DB

	// Config marks a configuration loading or validation failure.
	Config

	// IO marks a filesystem or network I/O failure.
	IO

	// AddrParse marks an unparseable listen address.
	AddrParse

	// Hex marks invalid hexadecimal input.
	Hex

	// ParseInt and ParseFloat mark unparseable numeric text.
	ParseInt
	ParseFloat

	// JSON marks a JSON encoding or decoding failure.
	JSON

	// Timeout marks an elapsed deadline.
	Timeout

	// Send marks a failed channel send between pipeline tasks.
	Send

	// Join marks a failed pipeline task.
	Join
)

func (k Kind) String() string {
	switch k {
	case InvalidBlockData:
		return "invalid block data"
	case InvalidTxData:
		return "invalid transaction data"
	case InvalidChecksum:
		return "invalid checksum data"
	case Tendermint:
		return "tendermint error"
	case TendermintRPC:
		return "tendermint rpc error"
	case DB:
		return "database error"
	case Config:
		return "configuration error"
	case IO:
		return "io error"
	case AddrParse:
		return "address parsing error"
	case Hex:
		return "hex error"
	case ParseInt:
		return "parse int error"
	case ParseFloat:
		return "parse float error"
	case JSON:
		return "json error"
	case Timeout:
		return "timeout"
	case Send:
		return "channel send error"
	case Join:
		return "task error"
	default:
		return "unknown error"
	}
}

// Error is a classified error. The zero value is not useful; construct
// with E or Wrap.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// E builds a classified error from a message.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it as the cause.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, cause: err}
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.kind, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's class.
func (e *Error) Kind() Kind { return e.kind }

// Classify extracts the Kind from err, walking the wrap chain. Errors that
// never passed through this package report Unknown.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

// HTTPStatus maps an error to the status code the JSON API responds with.
// Note that a missing row is not an error: handlers answer 200 with a JSON
// null body in that case.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case Hex:
		return http.StatusBadRequest
	case InvalidBlockData, InvalidTxData, Tendermint:
		return http.StatusExpectationFailed
	case DB:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
