package main

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %v", s, err)
	}
	return amount, nil
}

func parseTimestamp(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %v", s, err)
	}
	return uint32(v), nil
}

func parseTimestamps(args []string) ([]uint32, error) {
	timestamps := make([]uint32, 0, len(args))
	for _, arg := range args {
		t, err := parseTimestamp(arg)
		if err != nil {
			return nil, err
		}
		timestamps = append(timestamps, t)
	}
	return timestamps, nil
}

// parseWindows splits "start end start end ..." into starts and ends.
func parseWindows(args []string) ([]uint32, []uint32, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, nil, fmt.Errorf("expected pairs of start and end timestamps, got %d timestamps", len(args))
	}
	timestamps, err := parseTimestamps(args)
	if err != nil {
		return nil, nil, err
	}
	starts := make([]uint32, 0, len(timestamps)/2)
	ends := make([]uint32, 0, len(timestamps)/2)
	for i := 0; i < len(timestamps); i += 2 {
		starts = append(starts, timestamps[i])
		ends = append(ends, timestamps[i+1])
	}
	return starts, ends, nil
}

func parseIDs(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %v", arg, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}
