// Package ledger implements the append-only, hash-chained audit trail.
// Every computation and policy decision appends one block; each block's
// hash covers its index, timestamp, payload and the hash of its
// predecessor, so any edit to a stored block is detectable by rehashing
// the chain from genesis.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Evidence is the payload recorded per block and the only structure
// intended to be durably exported.
type Evidence struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"` // ISO-8601
	SubjectID     string `json:"subjectId"`
	Decision      string `json:"decision"`
	PolicyVersion string `json:"policyVersion"`
	InputHash     string `json:"inputHash"`
	Signature     string `json:"signature"`
}

// Block is one link of the audit chain. Index is monotonic and starts
// at 1; the first block's predecessor hash is GenesisHash.
type Block struct {
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Evidence  `json:"payload"`
	PrevHash  [32]byte  `json:"-"`
	Hash      [32]byte  `json:"-"`
}

// blockJSON carries the hashes in hex for export.
type blockJSON struct {
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Evidence  `json:"payload"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// MarshalJSON exports the block with hex-encoded hashes.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		Payload:   b.Payload,
		PrevHash:  hex.EncodeToString(b.PrevHash[:]),
		Hash:      hex.EncodeToString(b.Hash[:]),
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (b *Block) UnmarshalJSON(data []byte) error {
	var bj blockJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return err
	}

	prev, err := hex.DecodeString(bj.PrevHash)
	if err != nil || len(prev) != 32 {
		return fmt.Errorf("invalid prevHash encoding")
	}
	hash, err := hex.DecodeString(bj.Hash)
	if err != nil || len(hash) != 32 {
		return fmt.Errorf("invalid hash encoding")
	}

	b.Index = bj.Index
	b.Timestamp = bj.Timestamp
	b.Payload = bj.Payload
	copy(b.PrevHash[:], prev)
	copy(b.Hash[:], hash)
	return nil
}

// GenesisHash is the well-known predecessor hash of the first block.
var GenesisHash [32]byte

// ComputeBlockHash hashes (index, timestamp, payload, prevHash). The
// timestamp is committed at nanosecond precision; the payload is
// committed through its canonical JSON encoding.
func ComputeBlockHash(index uint64, timestamp time.Time, payload Evidence, prevHash [32]byte) ([32]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	h := sha256.New()
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	h.Write(idx[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp.UnixNano()))
	h.Write(ts[:])

	h.Write(payloadJSON)
	h.Write(prevHash[:])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// Chain is an append-only audit ledger owned by a single session. The
// tail is guarded by a mutex so appends from one session serialize; two
// concurrent rounds must own independent Chain instances.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block
	now    func() time.Time
}

// NewChain creates an empty chain at genesis.
func NewChain() *Chain {
	return &Chain{now: time.Now}
}

// WithClock overrides the chain's clock. Used by tests.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.now = now
	return c
}

// Append records one evidence payload as a new block and returns it.
func (c *Chain) Append(payload Evidence) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := GenesisHash
	if n := len(c.blocks); n > 0 {
		prevHash = c.blocks[n-1].Hash
	}

	block := Block{
		Index:     uint64(len(c.blocks) + 1),
		Timestamp: c.now().UTC(),
		Payload:   payload,
		PrevHash:  prevHash,
	}

	hash, err := ComputeBlockHash(block.Index, block.Timestamp, block.Payload, block.PrevHash)
	if err != nil {
		return Block{}, err
	}
	block.Hash = hash

	c.blocks = append(c.blocks, block)
	return block, nil
}

// Reset clears the chain back to an empty state at genesis. The only
// permitted mutation besides Append.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = nil
}

// Len returns the number of blocks.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Blocks returns a copy of the chain.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Verify walks the chain from genesis, recomputing every hash from the
// stored fields. Any mismatch of a recomputed hash, a broken predecessor
// link or a non-monotonic index indicates tampering.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prevHash := GenesisHash
	for i, block := range c.blocks {
		if block.Index != uint64(i+1) {
			return fmt.Errorf("block %d: index %d out of sequence", i, block.Index)
		}
		if !bytes.Equal(block.PrevHash[:], prevHash[:]) {
			return fmt.Errorf("block %d: predecessor hash does not match chain", block.Index)
		}

		recomputed, err := ComputeBlockHash(block.Index, block.Timestamp, block.Payload, block.PrevHash)
		if err != nil {
			return err
		}
		if !bytes.Equal(recomputed[:], block.Hash[:]) {
			return fmt.Errorf("block %d: stored hash does not match recomputed hash", block.Index)
		}

		prevHash = block.Hash
	}
	return nil
}

// Export serializes the whole chain for durable storage.
func (c *Chain) Export() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.blocks)
}
