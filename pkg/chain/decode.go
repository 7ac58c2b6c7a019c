package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnavailable marks a Result whose call did not succeed. The value is
// unknown, which is not the same thing as zero.
var ErrUnavailable = errors.New("chain: result unavailable")

// FieldDecodeError reports that one field of one contract failed to decode.
// It is non-fatal: callers absorb it and apply the documented default for the
// field, without dropping the rest of the record.
type FieldDecodeError struct {
	Method string
	Err    error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Method, e.Err)
}

func (e *FieldDecodeError) Unwrap() error { return e.Err }

func unpackOne(contractABI *abi.ABI, method string, res Result) (any, error) {
	if !res.Success {
		return nil, &FieldDecodeError{Method: method, Err: ErrUnavailable}
	}
	out, err := contractABI.Unpack(method, res.ReturnData)
	if err != nil {
		return nil, &FieldDecodeError{Method: method, Err: err}
	}
	if len(out) != 1 {
		return nil, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected 1 output, got %d", len(out))}
	}
	return out[0], nil
}

func DecodeUint256(contractABI *abi.ABI, method string, res Result) (*big.Int, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected uint256, got %T", out)}
	}
	return v, nil
}

func DecodeBool(contractABI *abi.ABI, method string, res Result) (bool, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return false, err
	}
	v, ok := out.(bool)
	if !ok {
		return false, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected bool, got %T", out)}
	}
	return v, nil
}

func DecodeString(contractABI *abi.ABI, method string, res Result) (string, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return "", err
	}
	v, ok := out.(string)
	if !ok {
		return "", &FieldDecodeError{Method: method, Err: fmt.Errorf("expected string, got %T", out)}
	}
	return v, nil
}

func DecodeUint8(contractABI *abi.ABI, method string, res Result) (uint8, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return 0, err
	}
	v, ok := out.(uint8)
	if !ok {
		return 0, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected uint8, got %T", out)}
	}
	return v, nil
}

func DecodeAddress(contractABI *abi.ABI, method string, res Result) (common.Address, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out.(common.Address)
	if !ok {
		return common.Address{}, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected address, got %T", out)}
	}
	return v, nil
}

func DecodeAddresses(contractABI *abi.ABI, method string, res Result) ([]common.Address, error) {
	out, err := unpackOne(contractABI, method, res)
	if err != nil {
		return nil, err
	}
	v, ok := out.([]common.Address)
	if !ok {
		return nil, &FieldDecodeError{Method: method, Err: fmt.Errorf("expected address[], got %T", out)}
	}
	return v, nil
}

// The OrDefault variants below are the single place where defaulting policy
// lives: amount fields default to zero only because the records carrying them
// are display snapshots, never inputs to accounting; strings default to empty
// and booleans to false. Token symbol/decimals defaults (TOKEN/18) are owned
// by the token resolver, not here.

func Uint256OrZero(contractABI *abi.ABI, method string, res Result) *big.Int {
	v, err := DecodeUint256(contractABI, method, res)
	if err != nil {
		return new(big.Int)
	}
	return v
}

func BoolOrFalse(contractABI *abi.ABI, method string, res Result) bool {
	v, err := DecodeBool(contractABI, method, res)
	if err != nil {
		return false
	}
	return v
}

func StringOrEmpty(contractABI *abi.ABI, method string, res Result) string {
	v, err := DecodeString(contractABI, method, res)
	if err != nil {
		return ""
	}
	return v
}
