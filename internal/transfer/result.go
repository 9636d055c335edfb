package transfer

import (
	"time"

	"github.com/Ning0612/adbexplorer/internal/sizecalc"
)

// Direction is the way bytes flow
type Direction int

const (
	Pull Direction = iota
	Push
)

func (d Direction) String() string {
	if d == Push {
		return "push"
	}
	return "pull"
}

// ItemState tracks one item through a batch
type ItemState int

const (
	StatePending ItemState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s ItemState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// ItemResult is the outcome of one transferred item
type ItemResult struct {
	Name   string
	Source string
	Dest   string
	IsDir  bool
	State  ItemState
	Bytes  int64
	Err    error

	// Deleted is set when a move removed its source after verification
	Deleted bool
	// Kept explains why a move left its source in place
	Kept string
}

// Summary is the outcome of a batch. Failed includes cancelled items.
type Summary struct {
	Direction Direction
	Move      bool
	DryRun    bool

	Succeeded int
	Failed    int
	Cancelled int
	Bytes     int64
	Elapsed   time.Duration

	Sizes sizecalc.Sizes
	Items []ItemResult
}

func (s *Summary) finish(start time.Time) {
	s.Succeeded, s.Failed, s.Cancelled, s.Bytes = 0, 0, 0, 0
	for _, it := range s.Items {
		switch it.State {
		case StateSucceeded:
			s.Succeeded++
			s.Bytes += it.Bytes
		case StateCancelled:
			s.Cancelled++
			s.Failed++
		case StateFailed:
			s.Failed++
		}
	}
	s.Elapsed = time.Since(start)
}

// abort marks every item from i on as cancelled
func (s *Summary) abort(i int, err error) {
	for ; i < len(s.Items); i++ {
		if s.Items[i].State == StatePending {
			s.Items[i].State = StateCancelled
			s.Items[i].Err = err
		}
	}
}
