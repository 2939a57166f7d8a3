// Package tools provides the arithmetic tools the agent can call.
// Single source of truth for tool names, schemas and evaluation.
package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidArgument is returned when an argument is missing or is not a
	// finite number.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange is returned when a result overflows float64.
	ErrOutOfRange = errors.New("result out of range")
	// ErrDivisionByZero is returned by Divide when the divisor parses to zero.
	ErrDivisionByZero = errors.New("cannot divide by zero")
	// ErrUnknownTool is returned when a requested tool is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Plus returns a + b.
func Plus(a, b string) (float64, error) {
	x, y, err := parseOperands(a, b)
	if err != nil {
		return 0, err
	}
	return finite(x + y)
}

// Subtract returns a - b.
func Subtract(a, b string) (float64, error) {
	x, y, err := parseOperands(a, b)
	if err != nil {
		return 0, err
	}
	return finite(x - y)
}

// Multiply returns a * b.
func Multiply(a, b string) (float64, error) {
	x, y, err := parseOperands(a, b)
	if err != nil {
		return 0, err
	}
	return finite(x * y)
}

// Divide returns a / b. It fails with ErrDivisionByZero when b parses to zero.
func Divide(a, b string) (float64, error) {
	x, y, err := parseOperands(a, b)
	if err != nil {
		return 0, err
	}
	if y == 0 {
		return 0, ErrDivisionByZero
	}
	return finite(x / y)
}

func parseOperands(a, b string) (float64, float64, error) {
	x, err := parseOperand("a", a)
	if err != nil {
		return 0, 0, err
	}
	y, err := parseOperand("b", b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// parseOperand accepts finite numbers only. NaN, infinities and literals
// beyond float64 range are rejected.
func parseOperand(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		return 0, fmt.Errorf("%w: %s=%q is out of range", ErrInvalidArgument, name, raw)
	case err != nil, math.IsNaN(v), math.IsInf(v, 0):
		return 0, fmt.Errorf("%w: %s=%q is not a finite number", ErrInvalidArgument, name, raw)
	}
	return v, nil
}

func finite(v float64) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrOutOfRange
	}
	return v, nil
}
