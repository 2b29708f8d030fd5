package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the bech32 human-readable part of marketplace addresses.
const AddressPrefix = "dm"

// AddressLength is the size of an account identifier in bytes.
const AddressLength = 20

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte account identifier. It renders as bech32 and parses
// from either bech32 or hex.
type Address [AddressLength]byte

// String returns the bech32 form, e.g. dm1qqqq....
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex returns the EIP-55 checksummed hex form.
func (a Address) Hex() string {
	return ethcommon.Address(a).Hex()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress accepts a bech32 address carrying AddressPrefix or a 20-byte
// hex string with or without the 0x prefix.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(trimmed), AddressPrefix+"1") {
		return decodeBech32(trimmed)
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return Address{}, fmt.Errorf("%w: expected %d bytes of hex or a %s1 bech32 string", ErrInvalidAddress, AddressLength, AddressPrefix)
	}
	return Address(ethcommon.HexToAddress(trimmed)), nil
}

func decodeBech32(raw string) (Address, error) {
	prefix, decoded, err := bech32.Decode(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("%w: decoded %d bytes", ErrInvalidAddress, len(conv))
	}
	var addr Address
	copy(addr[:], conv)
	return addr, nil
}
