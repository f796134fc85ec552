// Package integrity provides tamper-evident hashing and Merkle tree
// construction for bundle and outcome audit trails. All functions are pure
// and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
)

// hashPrefix versions the canonical encoding. Bumped if the field layout changes.
const hashPrefix = "v1:"

// writeFields SHA-256 hashes each field with a length prefix, avoiding
// delimiter collisions when inputs contain arbitrary text, and returns the
// hashPrefix-versioned hex digest.
func writeFields(fields ...string) string {
	h := sha256.New()
	for _, s := range fields {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // field lengths are bounded
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil))
}

// ComputeBundleContentHash hashes the canonical, order-independent content of
// a PredictionBundle: (run_id, expert_id, game_id) plus every category's
// value (confidence and stake are not hashed) — per SPEC_FULL.md §D.2, adapted from the
// teacher's decision content-hash idiom. Two bundles with the same category
// values hash identically regardless of map iteration order, since
// categoryIDs is sorted before hashing.
func ComputeBundleContentHash(runID, expertID, gameID string, categoryValues map[string]string) string {
	ids := make([]string, 0, len(categoryValues))
	for id := range categoryValues {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fields := []string{runID, expertID, gameID}
	for _, id := range ids {
		fields = append(fields, id, categoryValues[id])
	}
	return writeFields(fields...)
}

// ComputeOutcomeContentHash hashes a graded Outcome's canonical fields, used
// to make outcome re-ingestion idempotent (§4.8 OutcomeDuplicate).
func ComputeOutcomeContentHash(runID, gameID, expertID, categoryID string, correct *bool, errVal *float64) string {
	correctStr := ""
	if correct != nil {
		correctStr = strconv.FormatBool(*correct)
	}
	errStr := ""
	if errVal != nil {
		errStr = strconv.FormatFloat(*errVal, 'f', 10, 64)
	}
	return writeFields(runID, gameID, expertID, categoryID, correctStr, errStr)
}

// hashPair produces SHA-256(0x01 || len(a) || a || b) as a hex string.
// The 0x01 prefix is a domain separator for internal Merkle tree nodes (per
// RFC 6962), ensuring internal node hashes can never collide with leaf hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	aBytes := []byte(a)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(aBytes))) //nolint:gosec // hash inputs are bounded-length hex strings
	h.Write(lenBuf[:])
	h.Write(aBytes)
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root, used by the provenance audit job (§4.4) to produce a tamper-evident
// summary of one game's settled outcomes. Leaves must be sorted
// lexicographically by the caller for determinism. Odd-length levels hash
// the last node with itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
