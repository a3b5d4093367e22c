package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Address is a parsed 20-byte account address.
type Address struct {
	addr common.Address
}

// ParseAddress trims and lower-cases raw before validating it as a
// hex-encoded account address, with or without the 0x prefix.
func ParseAddress(raw string) (Address, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !common.IsHexAddress(s) {
		return Address{}, ErrInvalidAddress
	}
	return Address{addr: common.HexToAddress(s)}, nil
}

// AddressFromCommon wraps an already decoded go-ethereum address.
func AddressFromCommon(addr common.Address) Address {
	return Address{addr: addr}
}

// Lower returns the 0x-prefixed lowercase hex form, used as lookup key and
// inside challenge messages.
func (a Address) Lower() string {
	return hexutil.Encode(a.addr[:])
}

// Display returns the EIP-55 checksum form.
func (a Address) Display() string {
	return a.addr.Hex()
}

func (a Address) Bytes() []byte {
	return a.addr.Bytes()
}

func (a Address) Common() common.Address {
	return a.addr
}

func (a Address) IsZero() bool {
	return a.addr == (common.Address{})
}

func (a Address) String() string {
	return a.Display()
}

// Equal compares the underlying bytes, so any two encodings of the same
// account are equal.
func (a Address) Equal(other Address) bool {
	return a.addr == other.addr
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Lower()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
