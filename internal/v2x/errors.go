package v2x

import "errors"

// Sentinel errors returned by Channel.Publish. Callers should compare with
// errors.Is; each is local to the rejected publish and never propagates
// beyond the channel boundary.
var (
	ErrInvalidMAC   = errors.New("v2x: invalid mac")
	ErrInvalidRange = errors.New("v2x: numeric field out of range or non-finite")
	ErrStaleMessage = errors.New("v2x: stale or non-monotonic timestamp")
	ErrRateLimited  = errors.New("v2x: agent exceeded broadcast rate limit")
)
