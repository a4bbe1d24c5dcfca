package graph

import (
	"fmt"
	"strings"
)

// DType is the element type of a tensor.
type DType uint8

const (
	DTypeInvalid DType = iota
	Float16
	Float32
	BFloat16
	Int8
	UInt8
	Int32
)

var dtypeNames = [...]string{
	DTypeInvalid: "invalid",
	Float16:      "float16",
	Float32:      "float32",
	BFloat16:     "bfloat16",
	Int8:         "int8",
	UInt8:        "uint8",
	Int32:        "int32",
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Float16, BFloat16:
		return 2
	case Float32, Int32:
		return 4
	case Int8, UInt8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Short is the abbreviation used in conversion mnemonics (f16, s8, ...).
func (d DType) Short() string {
	switch d {
	case Float16:
		return "f16"
	case Float32:
		return "f32"
	case BFloat16:
		return "bf16"
	case Int8:
		return "s8"
	case UInt8:
		return "u8"
	case Int32:
		return "s32"
	default:
		return "?"
	}
}

func (d DType) IsFloat() bool {
	return d == Float16 || d == Float32 || d == BFloat16
}

// ParseDType accepts the long names plus the common short aliases.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float16", "fp16", "f16", "half":
		return Float16, nil
	case "float32", "fp32", "f32", "float":
		return Float32, nil
	case "bfloat16", "bf16":
		return BFloat16, nil
	case "int8", "s8":
		return Int8, nil
	case "uint8", "u8":
		return UInt8, nil
	case "int32", "s32":
		return Int32, nil
	}
	return DTypeInvalid, fmt.Errorf("unknown dtype %q", s)
}

func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// RoundMode selects the rounding behaviour of a float to integer conversion.
type RoundMode uint8

const (
	RoundNone RoundMode = iota
	RoundNearest
	RoundFloor
	RoundCeil
	RoundTrunc
)

func (r RoundMode) String() string {
	switch r {
	case RoundNearest:
		return "Round"
	case RoundFloor:
		return "Floor"
	case RoundCeil:
		return "Ceil"
	case RoundTrunc:
		return "Trunc"
	default:
		return ""
	}
}

func ParseRoundMode(s string) (RoundMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RoundNone, nil
	case "round", "nearest":
		return RoundNearest, nil
	case "floor":
		return RoundFloor, nil
	case "ceil":
		return RoundCeil, nil
	case "trunc":
		return RoundTrunc, nil
	}
	return RoundNone, fmt.Errorf("unknown round mode %q", s)
}

func (r RoundMode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RoundMode) UnmarshalText(b []byte) error {
	v, err := ParseRoundMode(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
