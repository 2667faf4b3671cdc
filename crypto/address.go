package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used when rendering addresses.
const AddressPrefix = "cf"

// Address identifies an account, mint or record owner. Program-owned
// addresses (vault treasuries, pool reserves, token mints) are derived from
// seeds so that the same inputs always resolve to the same identity.
type Address [20]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// Hex returns the lowercase hex encoding without prefix.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return a.Hex()
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		return a.Hex()
	}
	return encoded
}

// MarshalText renders the bech32 form so addresses embed cleanly in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts either the bech32 or the hex form.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a bech32 address with the cf prefix, falling back to a
// 40 character hex string.
func ParseAddress(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address required")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), AddressPrefix+"1") {
		prefix, decoded, err := bech32.Decode(trimmed)
		if err != nil {
			return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
		}
		if prefix != AddressPrefix {
			return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
		}
		conv, err := bech32.ConvertBits(decoded, 5, 8, false)
		if err != nil {
			return Address{}, fmt.Errorf("error converting bits: %w", err)
		}
		return addressFromBytes(conv)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(trimmed), "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q", value)
	}
	return addressFromBytes(raw)
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(value string) Address {
	addr, err := ParseAddress(value)
	if err != nil {
		panic(err)
	}
	return addr
}

func addressFromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != len(addr) {
		return Address{}, fmt.Errorf("address must be %d bytes long", len(addr))
	}
	copy(addr[:], b)
	return addr, nil
}

// DeriveAddress hashes the seeds with keccak256 and keeps the trailing 20
// bytes, mirroring how contract addresses are produced from their inputs.
func DeriveAddress(seeds ...[]byte) Address {
	digest := ethcrypto.Keccak256(seeds...)
	var addr Address
	copy(addr[:], digest[len(digest)-len(addr):])
	return addr
}

// DeriveRecordID hashes the seeds into a 32 byte record identifier.
func DeriveRecordID(seeds ...[]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(seeds...))
	return id
}

// Uint32Seed encodes v big-endian for use as a derivation seed.
func Uint32Seed(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// Uint64Seed encodes v big-endian for use as a derivation seed.
func Uint64Seed(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
