package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"ledgerguard/core/types"
)

const (
	TypeBucketAdded               = "ratelimit.bucketAdded"
	TypeBucketRemoved             = "ratelimit.bucketRemoved"
	TypeBucketRateLimitUpdated    = "ratelimit.rateLimitUpdated"
	TypeBucketRateDurationUpdated = "ratelimit.rateDurationUpdated"
	TypeBucketConsumed            = "ratelimit.consumed"
	TypeBucketFilled              = "ratelimit.filled"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

type BucketAdded struct {
	BucketID types.BucketID
	Limit    *uint256.Int
	Duration uint64
}

func (BucketAdded) EventType() string { return TypeBucketAdded }

func (e BucketAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketAdded,
		Attributes: map[string]string{
			"bucketId": e.BucketID.String(),
			"limit":    amountString(e.Limit),
			"duration": strconv.FormatUint(e.Duration, 10),
		},
	}
}

type BucketRemoved struct {
	BucketID types.BucketID
}

func (BucketRemoved) EventType() string { return TypeBucketRemoved }

func (e BucketRemoved) Event() *types.Event {
	return &types.Event{
		Type:       TypeBucketRemoved,
		Attributes: map[string]string{"bucketId": e.BucketID.String()},
	}
}

type BucketRateLimitUpdated struct {
	BucketID types.BucketID
	Limit    *uint256.Int
}

func (BucketRateLimitUpdated) EventType() string { return TypeBucketRateLimitUpdated }

func (e BucketRateLimitUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketRateLimitUpdated,
		Attributes: map[string]string{
			"bucketId": e.BucketID.String(),
			"limit":    amountString(e.Limit),
		},
	}
}

type BucketRateDurationUpdated struct {
	BucketID types.BucketID
	Duration uint64
}

func (BucketRateDurationUpdated) EventType() string { return TypeBucketRateDurationUpdated }

func (e BucketRateDurationUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketRateDurationUpdated,
		Attributes: map[string]string{
			"bucketId": e.BucketID.String(),
			"duration": strconv.FormatUint(e.Duration, 10),
		},
	}
}

type BucketConsumed struct {
	BucketID types.BucketID
	Amount   *uint256.Int
}

func (BucketConsumed) EventType() string { return TypeBucketConsumed }

func (e BucketConsumed) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketConsumed,
		Attributes: map[string]string{
			"bucketId": e.BucketID.String(),
			"amount":   amountString(e.Amount),
		},
	}
}

// BucketFilled carries the amount actually applied, which may be less than
// the amount requested when the bucket is near its limit.
type BucketFilled struct {
	BucketID types.BucketID
	Amount   *uint256.Int
}

func (BucketFilled) EventType() string { return TypeBucketFilled }

func (e BucketFilled) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketFilled,
		Attributes: map[string]string{
			"bucketId": e.BucketID.String(),
			"amount":   amountString(e.Amount),
		},
	}
}

// NewBucketConsumed copies amount so later mutation by the caller does not
// leak into the log.
func NewBucketConsumed(id types.BucketID, amount *uint256.Int) BucketConsumed {
	return BucketConsumed{BucketID: id, Amount: cloneAmount(amount)}
}

// NewBucketFilled copies amount.
func NewBucketFilled(id types.BucketID, amount *uint256.Int) BucketFilled {
	return BucketFilled{BucketID: id, Amount: cloneAmount(amount)}
}

// NewBucketAdded copies limit.
func NewBucketAdded(id types.BucketID, limit *uint256.Int, duration uint64) BucketAdded {
	return BucketAdded{BucketID: id, Limit: cloneAmount(limit), Duration: duration}
}

// NewBucketRateLimitUpdated copies limit.
func NewBucketRateLimitUpdated(id types.BucketID, limit *uint256.Int) BucketRateLimitUpdated {
	return BucketRateLimitUpdated{BucketID: id, Limit: cloneAmount(limit)}
}
