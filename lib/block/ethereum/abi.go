package ethereum

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Wallet contract function signatures. The 4-byte method ID is the keccak-256 of the
// signature, same scheme as the ERC20 transfer selectors.
const (
	sigUserExists    = "userExists(string)"
	sigRegister      = "register(string,string)"
	sigTransferFunds = "transferFunds(address,uint256,string)"
	sigDepositFunds  = "depositFunds()"
)

// Errors returned by the ABI encoders.
var (
	ErrBadAddress = errors.New("address must be a 0x-prefixed 20-byte hex string")
	ErrAmtTooBig  = errors.New("amount does not fit in a 256-bit word")
)

// methodID returns the first 4 bytes of the keccak-256 hash of the signature.
func methodID(sig string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))

	return h.Sum(nil)[:4]
}

// uintWord encodes n as a left-padded 32-byte word.
func uintWord(n uint64) []byte {
	return leftPad(new(big.Int).SetUint64(n).Bytes())
}

// encUint encodes a big integer as a 32-byte word.
func encUint(v *big.Int) ([]byte, error) {
	b := v.Bytes()
	if len(b) > 32 || v.Sign() < 0 {
		return nil, ErrAmtTooBig
	}

	return leftPad(b), nil
}

// encAddress encodes a 0x-prefixed address as a 32-byte word.
func encAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, "0x") {
		return nil, ErrBadAddress
	}

	b, err := hex.DecodeString(addr[2:])
	if err != nil || len(b) != 20 {
		return nil, ErrBadAddress
	}

	return leftPad(b), nil
}

// encString encodes a dynamic string tail: a length word followed by the bytes padded
// up to a word boundary. The offset word pointing at the tail is the caller's job.
func encString(s string) []byte {
	b := []byte(s)
	out := uintWord(uint64(len(b)))
	out = append(out, b...)

	if rem := len(b) % 32; rem != 0 {
		out = append(out, make([]byte, 32-rem)...)
	}

	return out
}

func leftPad(b []byte) []byte {
	w := make([]byte, 32)
	copy(w[32-len(b):], b)

	return w
}

// callUserExists builds the calldata for userExists(name).
func callUserExists(name string) []byte {
	data := methodID(sigUserExists)
	data = append(data, uintWord(32)...)
	data = append(data, encString(name)...)

	return data
}

// callRegister builds the calldata for register(name, secret).
func callRegister(name, secret string) []byte {
	tail := encString(name)

	data := methodID(sigRegister)
	data = append(data, uintWord(64)...)
	data = append(data, uintWord(uint64(64+len(tail)))...)
	data = append(data, tail...)
	data = append(data, encString(secret)...)

	return data
}

// callTransferFunds builds the calldata for transferFunds(to, amount, secret).
func callTransferFunds(to string, amount *big.Int, secret string) ([]byte, error) {
	addr, err := encAddress(to)
	if err != nil {
		return nil, err
	}

	amt, err := encUint(amount)
	if err != nil {
		return nil, err
	}

	data := methodID(sigTransferFunds)
	data = append(data, addr...)
	data = append(data, amt...)
	data = append(data, uintWord(96)...)
	data = append(data, encString(secret)...)

	return data, nil
}

// callDepositFunds builds the calldata for depositFunds(). The deposited value rides
// on the transaction itself.
func callDepositFunds() []byte {
	return methodID(sigDepositFunds)
}
