package solwire

import "github.com/pkg/errors"

// Commitment is the confidence level a node applies when it chooses
// which bank state to answer a query from. Levels are ordered:
// finalized results are a subset of confirmed results, which are a
// subset of processed results.
type Commitment string

// Commitment levels, in increasing order of finality. An empty
// Commitment means "use the client default".
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ErrInvalidCommitment is returned when a request names a commitment
// level outside the supported set.
var ErrInvalidCommitment = errors.New("invalid commitment level")

var commitmentOrder = map[Commitment]int{
	CommitmentProcessed: 0,
	CommitmentConfirmed: 1,
	CommitmentFinalized: 2,
}

// Valid reports whether c is one of the three supported levels.
func (c Commitment) Valid() bool {
	_, ok := commitmentOrder[c]
	return ok
}

// Validate returns ErrInvalidCommitment for a non-empty level outside
// the supported set. The empty level is valid and means "default".
func (c Commitment) Validate() error {
	if c == "" || c.Valid() {
		return nil
	}
	return errors.Wrapf(ErrInvalidCommitment, "%q", string(c))
}

// AtLeast reports whether c carries at least as much finality as other.
// Unknown levels compare as the lowest.
func (c Commitment) AtLeast(other Commitment) bool {
	return commitmentOrder[c] >= commitmentOrder[other]
}

func (c Commitment) String() string {
	return string(c)
}
