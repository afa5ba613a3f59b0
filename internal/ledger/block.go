// Package ledger implements the tamper-evident block chain over custody
// events: one global append-only sequence with a per-unit filtered view.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"meditrace/internal/fingerprint"
	unitmodels "meditrace/internal/unit/models"
)

// GenesisPrevHash is the sentinel predecessor hash of block 0.
const GenesisPrevHash = "0x000000"

// PayloadKind discriminates what a block wraps.
type PayloadKind string

const (
	// KindRegistration marks the block appended when a unit is registered.
	// It carries no location and never participates in travel analysis.
	KindRegistration PayloadKind = "registration"
	// KindCustody wraps one custody event.
	KindCustody PayloadKind = "custody"
)

// Payload is the domain content of a block. It is serialized to canonical
// JSON exactly once, at append time; integrity checks hash the stored bytes,
// so the chain stays verifiable even if field order conventions change later.
type Payload struct {
	Kind            PayloadKind          `json:"kind"`
	UnitID          string               `json:"unit_id"`
	FingerprintHash string               `json:"fingerprint_hash,omitempty"`
	EventType       unitmodels.EventType `json:"event_type,omitempty"`
	Location        string               `json:"location,omitempty"`
	Latitude        float64              `json:"latitude,omitempty"`
	Longitude       float64              `json:"longitude,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// Block is one entry in the chain.
type Block struct {
	Index     int64     `json:"block_index"`
	UnitID    string    `json:"unit_id,omitempty"`
	Payload   string    `json:"payload"`
	PrevHash  string    `json:"previous_hash"`
	Hash      string    `json:"block_hash"`
	Timestamp time.Time `json:"block_timestamp"`
}

// ComputeHash derives the block hash over the index, payload, previous hash
// and timestamp. Timestamps are normalized to UTC RFC3339Nano so the pre-image
// does not depend on the server's zone.
func ComputeHash(index int64, payload, prevHash string, timestamp time.Time) string {
	return fingerprint.Digest(
		strconv.FormatInt(index, 10),
		payload,
		prevHash,
		timestamp.UTC().Format(time.RFC3339Nano),
	)
}

// EncodePayload serializes a payload for storage and hashing.
func EncodePayload(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode block payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses the stored payload bytes of a block.
func DecodePayload(b *Block) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(b.Payload), &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload of block %d: %w", b.Index, err)
	}
	return p, nil
}

// CustodyRecord is the decoded view of a custody block that the anomaly
// detector and verdict timelines consume.
type CustodyRecord struct {
	BlockIndex int64                `json:"block_index"`
	Location   string               `json:"location"`
	Latitude   float64              `json:"latitude"`
	Longitude  float64              `json:"longitude"`
	EventType  unitmodels.EventType `json:"event_type"`
	Timestamp  time.Time            `json:"timestamp"`
}

// IntegrityReport is the outcome of a chain integrity walk. BreakIndex is nil
// when the chain is intact; otherwise it is the index of the first block that
// fails validation, and everything from that point forward is untrusted.
type IntegrityReport struct {
	Intact     bool   `json:"intact"`
	Length     int64  `json:"length"`
	BreakIndex *int64 `json:"break_index,omitempty"`
}

// VerifyBlocks walks an ordered block sequence, recomputing each block's hash
// from its own fields and checking the predecessor link. Pure read-side
// validation: it never repairs anything.
func VerifyBlocks(blocks []Block) IntegrityReport {
	report := IntegrityReport{Intact: true, Length: int64(len(blocks))}

	for i := range blocks {
		b := &blocks[i]

		if b.Index != int64(i) {
			return broken(report, int64(i))
		}
		if i == 0 {
			if b.PrevHash != GenesisPrevHash {
				return broken(report, 0)
			}
		} else if b.PrevHash != blocks[i-1].Hash {
			return broken(report, int64(i))
		}
		if ComputeHash(b.Index, b.Payload, b.PrevHash, b.Timestamp) != b.Hash {
			return broken(report, int64(i))
		}
		// The unit_id column drives the per-unit filtered view but is not
		// part of the hash pre-image; cross-check it against the hashed
		// payload so a block cannot be reassigned between units.
		p, err := DecodePayload(b)
		if err != nil || p.UnitID != b.UnitID {
			return broken(report, int64(i))
		}
	}

	return report
}

func broken(report IntegrityReport, at int64) IntegrityReport {
	report.Intact = false
	report.BreakIndex = &at
	return report
}
