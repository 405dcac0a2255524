package recordbuffer

import (
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"
)

// Draw is the result of a completed draw.
type Draw struct {
	DrawID                uint32
	WinningRandomNumber   uint256.Int
	Timestamp             uint64
	BeaconPeriodStartedAt uint64
	BeaconPeriodSeconds   uint32
}

type drawJSON struct {
	DrawID                uint32 `json:"drawId"`
	WinningRandomNumber   string `json:"winningRandomNumber"`
	Timestamp             uint64 `json:"timestamp"`
	BeaconPeriodStartedAt uint64 `json:"beaconPeriodStartedAt"`
	BeaconPeriodSeconds   uint32 `json:"beaconPeriodSeconds"`
}

func (d Draw) MarshalJSON() ([]byte, error) {
	return json.Marshal(drawJSON{
		DrawID:                d.DrawID,
		WinningRandomNumber:   d.WinningRandomNumber.Dec(),
		Timestamp:             d.Timestamp,
		BeaconPeriodStartedAt: d.BeaconPeriodStartedAt,
		BeaconPeriodSeconds:   d.BeaconPeriodSeconds,
	})
}

func (d *Draw) UnmarshalJSON(data []byte) error {
	var raw drawJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	random, err := parseUint256(raw.WinningRandomNumber)
	if err != nil {
		return errors.Wrap(err, "invalid winningRandomNumber")
	}
	*d = Draw{
		DrawID:                raw.DrawID,
		WinningRandomNumber:   *random,
		Timestamp:             raw.Timestamp,
		BeaconPeriodStartedAt: raw.BeaconPeriodStartedAt,
		BeaconPeriodSeconds:   raw.BeaconPeriodSeconds,
	}
	return nil
}

// RecordID returns the id the draw is stored under.
func (d Draw) RecordID() uint32 {
	return d.DrawID
}

func (d Draw) Validate() error {
	if d.DrawID == 0 {
		return errors.New("draw id must be positive")
	}
	return nil
}

func parseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}
