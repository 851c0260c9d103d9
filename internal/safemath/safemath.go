package safemath

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("number overflow")
	ErrUnderflow      = errors.New("number underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

func Sub64(a, b uint64) (uint64, bool) {
	v, borrow := bits.Sub64(a, b, 0)
	return v, borrow == 0
}

func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// Add returns a+b on 256 bits
func Add(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&a, &b); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

// Sub returns a-b on 256 bits
func Sub(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a, &b); underflow {
		return uint256.Int{}, ErrUnderflow
	}
	return z, nil
}

// Mul returns a*b on 256 bits
func Mul(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(&a, &b); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

// MulDiv returns floor(a*b/c) with a 512 bit intermediate product
func MulDiv(a, b, c uint256.Int) (uint256.Int, error) {
	if c.IsZero() {
		return uint256.Int{}, ErrDivisionByZero
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&a, &b, &c); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

// Min returns the smaller of a and b
func Min(a, b uint256.Int) uint256.Int {
	if a.Lt(&b) {
		return a
	}
	return b
}

// SaturatingSub returns a-b, or zero when b > a
func SaturatingSub(a, b uint256.Int) uint256.Int {
	if b.Gt(&a) {
		return uint256.Int{}
	}
	var z uint256.Int
	z.Sub(&a, &b)
	return z
}

// U64 is a shorthand for building a 256 bit value from a uint64
func U64(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}
