package elevation

import "github.com/dmitrymomot/elevate/pkg/replay"

// Result is the category of a verification attempt.
type Result string

const (
	ResultAccepted       Result = "accepted"
	ResultInvalidCode    Result = "invalid_code"
	ResultReplayRejected Result = "replay_rejected"
	ResultNotEnrolled    Result = "not_enrolled"
	ResultRateLimited    Result = "rate_limited"
)

// Outcome of VerifyAndConsume. Receipt is set only when Result is ResultAccepted.
type Outcome struct {
	Result  Result
	Receipt *replay.Receipt
}

func (o Outcome) Accepted() bool {
	return o.Result == ResultAccepted && o.Receipt != nil
}

// Err maps a rejected outcome to its sentinel error. Accepted outcomes return nil.
func (o Outcome) Err() error {
	switch o.Result {
	case ResultAccepted:
		return nil
	case ResultReplayRejected:
		return replay.ErrReplayRejected
	case ResultNotEnrolled:
		return ErrNotEnrolled
	case ResultRateLimited:
		return ErrRateLimited
	default:
		return ErrInvalidCode
	}
}
