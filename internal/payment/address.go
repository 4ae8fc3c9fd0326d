package payment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	// Mainnet addresses are 0x41 followed by the 20-byte account id.
	addressPrefix = 0x41
	addressLen    = 21
)

var errBadAddress = errors.New("invalid tron address")

// AddressHex converts a base58check address ("T...") to the 21-byte hex form
// the node API reports. Hex input is validated and lowercased.
func AddressHex(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) == 2*addressLen {
		raw, err := hex.DecodeString(addr)
		if err != nil || raw[0] != addressPrefix {
			return "", fmt.Errorf("%w: %q", errBadAddress, addr)
		}
		return strings.ToLower(addr), nil
	}

	account, version, err := base58.CheckDecode(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", errBadAddress, addr, err)
	}
	if version != addressPrefix {
		return "", fmt.Errorf("%w: %q wrong network prefix", errBadAddress, addr)
	}
	if len(account) != addressLen-1 {
		return "", fmt.Errorf("%w: %q has %d bytes", errBadAddress, addr, len(account)+1)
	}
	return hex.EncodeToString(append([]byte{addressPrefix}, account...)), nil
}
