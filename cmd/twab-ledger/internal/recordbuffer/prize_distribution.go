package recordbuffer

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/stellar/go/support/errors"
)

const (
	// TiersLength is the number of prize tiers of a distribution.
	TiersLength = 16
	// TiersCeiling is the fixed point representation of 100% for tier shares.
	TiersCeiling = 1e9
)

// ErrInvalidPrizeDistribution is returned when pushing a malformed prize distribution.
var ErrInvalidPrizeDistribution = errors.New("invalid prize distribution")

// PrizeDistribution holds the parameters used to compute the prizes of a draw.
type PrizeDistribution struct {
	BitRangeSize         uint8
	MatchCardinality     uint8
	StartTimestampOffset uint32
	EndTimestampOffset   uint32
	MaxPicksPerUser      uint32
	ExpiryDuration       uint32
	NumberOfPicks        uint64
	Tiers                [TiersLength]uint32
	Prize                uint256.Int
}

type prizeDistributionJSON struct {
	BitRangeSize         uint8               `json:"bitRangeSize"`
	MatchCardinality     uint8               `json:"matchCardinality"`
	StartTimestampOffset uint32              `json:"startTimestampOffset"`
	EndTimestampOffset   uint32              `json:"endTimestampOffset"`
	MaxPicksPerUser      uint32              `json:"maxPicksPerUser"`
	ExpiryDuration       uint32              `json:"expiryDuration"`
	NumberOfPicks        uint64              `json:"numberOfPicks"`
	Tiers                [TiersLength]uint32 `json:"tiers"`
	Prize                string              `json:"prize"`
}

func (p PrizeDistribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(prizeDistributionJSON{
		BitRangeSize:         p.BitRangeSize,
		MatchCardinality:     p.MatchCardinality,
		StartTimestampOffset: p.StartTimestampOffset,
		EndTimestampOffset:   p.EndTimestampOffset,
		MaxPicksPerUser:      p.MaxPicksPerUser,
		ExpiryDuration:       p.ExpiryDuration,
		NumberOfPicks:        p.NumberOfPicks,
		Tiers:                p.Tiers,
		Prize:                p.Prize.Dec(),
	})
}

func (p *PrizeDistribution) UnmarshalJSON(data []byte) error {
	var raw prizeDistributionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	prize, err := parseUint256(raw.Prize)
	if err != nil {
		return errors.Wrap(err, "invalid prize")
	}
	*p = PrizeDistribution{
		BitRangeSize:         raw.BitRangeSize,
		MatchCardinality:     raw.MatchCardinality,
		StartTimestampOffset: raw.StartTimestampOffset,
		EndTimestampOffset:   raw.EndTimestampOffset,
		MaxPicksPerUser:      raw.MaxPicksPerUser,
		ExpiryDuration:       raw.ExpiryDuration,
		NumberOfPicks:        raw.NumberOfPicks,
		Tiers:                raw.Tiers,
		Prize:                *prize,
	}
	return nil
}

// Validate checks the distribution can be used to compute prizes.
func (p PrizeDistribution) Validate() error {
	if p.MatchCardinality == 0 {
		return errors.Wrap(ErrInvalidPrizeDistribution, "matchCardinality must be positive")
	}
	if p.BitRangeSize == 0 {
		return errors.Wrap(ErrInvalidPrizeDistribution, "bitRangeSize must be positive")
	}
	if uint(p.BitRangeSize) > 256/uint(p.MatchCardinality) {
		return errors.Wrapf(ErrInvalidPrizeDistribution,
			"bitRangeSize %d is too large for matchCardinality %d", p.BitRangeSize, p.MatchCardinality)
	}
	if p.MaxPicksPerUser == 0 {
		return errors.Wrap(ErrInvalidPrizeDistribution, "maxPicksPerUser must be positive")
	}
	if p.ExpiryDuration == 0 {
		return errors.Wrap(ErrInvalidPrizeDistribution, "expiryDuration must be positive")
	}
	var sum uint64
	for _, tier := range p.Tiers {
		sum += uint64(tier)
	}
	if sum > TiersCeiling {
		return errors.Wrap(ErrInvalidPrizeDistribution, fmt.Sprintf("tiers add up to %d, above %d", sum, uint64(TiersCeiling)))
	}
	return nil
}
