package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"cashflow/storage"
)

var errCorruptAmount = errors.New("state: stored amount exceeds 64 bits")

// Manager reads and writes ledger records on top of a key-value database.
// Records are RLP encoded and stored under keccak256 hashed keys.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
// Callers wrap the database in a storage.Overlay when the writes of one
// transition must land atomically.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// put RLP encodes value under the hashed key.
func (m *Manager) put(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: empty key")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return m.db.Put(kvKey(key), encoded)
}

// get decodes the record under key into out. A nil out only tests presence.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: empty key")
	}
	data, err := m.read(kvKey(key))
	if err != nil || len(data) == 0 {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

// index returns the ids appended under key in insertion order.
func (m *Manager) index(key []byte) ([][]byte, error) {
	data, err := m.read(kvKey(key))
	if err != nil {
		return nil, err
	}
	ids := [][]byte{}
	if len(data) == 0 {
		return ids, nil
	}
	if err := rlp.DecodeBytes(data, &ids); err != nil {
		return nil, fmt.Errorf("state: decode index: %w", err)
	}
	return ids, nil
}

// appendIndex adds id to the index under key unless already present.
func (m *Manager) appendIndex(key []byte, id []byte) error {
	ids, err := m.index(key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if bytes.Equal(existing, id) {
			return nil
		}
	}
	ids = append(ids, append([]byte(nil), id...))
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return fmt.Errorf("state: encode index: %w", err)
	}
	return m.db.Put(kvKey(key), encoded)
}

// NextSequence returns the current counter for scope and advances it.
func (m *Manager) NextSequence(scope []byte) (uint64, error) {
	key := prefixedKey(sequencePrefix, scope)
	current := new(big.Int)
	if _, err := m.get(key, current); err != nil {
		return 0, err
	}
	if !current.IsUint64() || current.Uint64() == ^uint64(0) {
		return 0, fmt.Errorf("state: sequence overflow")
	}
	value := current.Uint64()
	if err := m.put(key, new(big.Int).SetUint64(value+1)); err != nil {
		return 0, err
	}
	return value, nil
}

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }

func int64FromBig(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}
