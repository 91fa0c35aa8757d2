// Package replication streams the evolution of a proxy store to replicas.
//
// A publisher captures the store once per broad phase update and emits a
// frame holding the zstd compressed encoding of the store diff since the
// previous frame. Every KeyframeInterval frames, the diff is computed against
// an empty store so that a replica can join or resynchronize from it.
package replication

import (
	"bytes"

	"github.com/aukilabs/broadphase/sap"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Frame is a replication message.
type Frame struct {
	StreamID uuid.UUID `json:"stream_id"`
	Seq      uint64    `json:"seq"`
	Keyframe bool      `json:"keyframe"`

	// The zstd compressed binary encoding of a sap.ProxiesDiff.
	Payload []byte `json:"payload"`

	// The checksum of the store once the frame is applied.
	Checksum []byte `json:"checksum"`
}

// Checksum returns the Keccak256 hash of the binary encoding of s.
func Checksum(s *sap.Proxies) []byte {
	return crypto.Keccak256(sap.AppendProxies(nil, s))
}

func checksumEqual(s *sap.Proxies, checksum []byte) bool {
	return bytes.Equal(Checksum(s), checksum)
}
