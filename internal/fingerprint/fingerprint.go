// Package fingerprint derives unit identifiers and the deterministic
// cryptographic digests used both for unit fingerprints and ledger block
// hashes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "meditrace/pkg/domain-errors"
)

// Delimiter joins fingerprint inputs into the canonical pre-image. None of
// the inputs may contain it, or two different input tuples could collapse to
// the same pre-image.
const Delimiter = ":"

// tokenPattern bounds batch tokens to the shape verification recognizes.
// Issued tokens are 8 hex chars; caller-supplied ones get the same envelope.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)

// GenerateUniqueID builds the `<batchToken>-<sequenceNumber>` identifier.
// Sequence numbers start at 1.
func GenerateUniqueID(batchToken string, sequenceNumber int) (string, error) {
	if !tokenPattern.MatchString(batchToken) {
		return "", dErrors.New(dErrors.CodeBadRequest, "batch token must be 4-32 alphanumeric characters")
	}
	if sequenceNumber < 1 {
		return "", dErrors.New(dErrors.CodeBadRequest, "sequence number must be >= 1")
	}
	return fmt.Sprintf("%s-%d", batchToken, sequenceNumber), nil
}

// NewBatchToken returns a short random token grouping units manufactured
// together. Eight hex chars of a UUID keeps scanned identifiers compact.
func NewBatchToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Compute derives the unit fingerprint: SHA-256 over the canonical
// concatenation of namespace tag, drug name, unique ID and manufacture date.
// Pure and deterministic; recomputing with identical inputs must reproduce
// the stored value bit for bit.
func Compute(namespaceTag, drugName, uniqueID, mfgDate string) string {
	return Digest(namespaceTag, drugName, uniqueID, mfgDate)
}

// Digest hex-encodes the SHA-256 of the parts joined with Delimiter. The
// ledger uses the same primitive for block hashes.
func Digest(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, Delimiter)))
	return hex.EncodeToString(h[:])
}
