package events

import (
	"encoding/hex"
	"strconv"

	"cashflow/crypto"
)

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func intToString(v int64) string { return strconv.FormatInt(v, 10) }

func addressString(addr crypto.Address) string { return addr.String() }

func hexID(id [32]byte) string { return hex.EncodeToString(id[:]) }
