// Package checksums loads the mapping between on-chain code hashes and
// human readable transaction kinds (tx_transfer, tx_bond, ...). The map is
// built once at startup and never mutated afterwards.
package checksums

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Zondax/namadexer/errs"
)

// Environment variables checked, in order, to locate the checksums source.
const (
	EnvProcessedFilePath = "CHECKSUMS_PROCESSED_FILE_PATH"
	EnvFilePath          = "CHECKSUMS_FILE_PATH"
	EnvRemoteURL         = "CHECKSUMS_REMOTE_URL"

	defaultLocalFile = "checksums.json"
)

// Map is the read-only registry code_hash (lowercase hex) -> kind name.
type Map map[string]string

// KindOf resolves a code hash, defaulting to "unknown" for hashes absent
// from the registry.
func (m Map) KindOf(codeHex string) string {
	if kind, ok := m[strings.ToLower(codeHex)]; ok {
		return kind
	}
	return "unknown"
}

// Load resolves the checksums source:
//  1. $CHECKSUMS_PROCESSED_FILE_PATH: pre-parsed JSON {hash: kind}
//  2. $CHECKSUMS_FILE_PATH: raw JSON {"kind.wasm": "kind.<hash>.wasm"}
//  3. $CHECKSUMS_REMOTE_URL: HTTP GET of the raw JSON
//  4. ./checksums.json (raw format)
func Load() (Map, error) {
	if path := os.Getenv(EnvProcessedFilePath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err)
		}
		return parseProcessed(data)
	}

	if path := os.Getenv(EnvFilePath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err)
		}
		return ParseRaw(data)
	}

	if url := os.Getenv(EnvRemoteURL); url != "" {
		resp, err := http.Get(url)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errs.E(errs.IO, "fetching checksums from %s: %s", url, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errs.Wrap(errs.IO, err)
		}
		return ParseRaw(data)
	}

	data, err := os.ReadFile(defaultLocalFile)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return ParseRaw(data)
}

func parseProcessed(data []byte) (Map, error) {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.InvalidChecksum, err)
	}
	out := make(Map, len(m))
	for hash, kind := range m {
		if hash == "" || kind == "" {
			return nil, errs.E(errs.InvalidChecksum, "empty entry %q: %q", hash, kind)
		}
		out[strings.ToLower(hash)] = kind
	}
	return out, nil
}

// ParseRaw parses the artifact checksums file shipped with a release.
// Entries look like "tx_transfer.wasm": "tx_transfer.<hex>.wasm"; the hash
// is the middle dot-component of the value, the kind is the first
// dot-component of the key.
func ParseRaw(data []byte) (Map, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.InvalidChecksum, err)
	}

	out := make(Map, len(raw))
	for key, value := range raw {
		vparts := strings.Split(value, ".")
		if len(vparts) < 2 {
			return nil, errs.E(errs.InvalidChecksum, "malformed value %q", value)
		}
		hash := vparts[1]

		kparts := strings.Split(key, ".")
		kind := kparts[0]
		if hash == "" || kind == "" {
			return nil, errs.E(errs.InvalidChecksum, "malformed entry %q: %q", key, value)
		}

		out[strings.ToLower(hash)] = kind
	}
	return out, nil
}
