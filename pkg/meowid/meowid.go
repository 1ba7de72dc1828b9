package meowid

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// MeowID layout, most significant bit first:
// Timestamp (41 bits, milliseconds since Epoch)
// Node ID (11 bits)
// Sequence (11 bits)

type MeowID = int64

const Epoch int64 = 1577836800000 // 2020-01-01 12am GMT

const (
	NodeIdBits   = 11
	SequenceBits = 11

	MaxNodeId   = 1<<NodeIdBits - 1
	MaxSequence = 1<<SequenceBits - 1
)

var ErrInvalidNodeId = errors.New("node id out of range")

var (
	mu       sync.Mutex
	nodeId   int64
	lastTs   int64
	sequence int64
)

// Init sets the node id stamped into every generated id.
func Init(node string) error {
	n, err := strconv.ParseInt(node, 10, 64)
	if err != nil {
		return err
	}
	if n < 0 || n > MaxNodeId {
		return ErrInvalidNodeId
	}
	mu.Lock()
	nodeId = n
	mu.Unlock()
	return nil
}

// GenId returns a new id, strictly greater than any id this node handed out
// before.
func GenId() MeowID {
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts < lastTs {
		ts = lastTs
	}
	if ts == lastTs {
		sequence++
		if sequence > MaxSequence {
			// sequence exhausted for this millisecond
			for ts <= lastTs {
				time.Sleep(100 * time.Microsecond)
				ts = time.Now().UnixMilli()
			}
			sequence = 0
		}
	} else {
		sequence = 0
	}
	lastTs = ts

	return (ts-Epoch)<<(NodeIdBits+SequenceBits) | nodeId<<SequenceBits | sequence
}

// New returns a new id in its decimal string form, as used for post and
// comment ids.
func New() string {
	return strconv.FormatInt(GenId(), 10)
}

func Parse(id string) (MeowID, error) {
	return strconv.ParseInt(id, 10, 64)
}

// Time returns when an id was generated.
func Time(id MeowID) time.Time {
	return time.UnixMilli(id>>(NodeIdBits+SequenceBits) + Epoch)
}

// Node returns the node that generated an id.
func Node(id MeowID) int64 {
	return id >> SequenceBits & MaxNodeId
}
