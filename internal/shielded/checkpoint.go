package shielded

import "fmt"

// Checkpoint is the sync cursor of a wallet: the number of UTXOs inserted in
// the accumulator and the number of nullifiers observed.
type Checkpoint struct {
	ReceiverIndex uint64 `json:"receiver_index"`
	SenderIndex   uint64 `json:"sender_index"`
}

// Advance returns the checkpoint after consuming the given number of
// receivers and senders.
func (c Checkpoint) Advance(receivers, senders int) Checkpoint {
	return Checkpoint{
		ReceiverIndex: c.ReceiverIndex + uint64(receivers),
		SenderIndex:   c.SenderIndex + uint64(senders),
	}
}

// Behind reports whether c lags other on either index.
func (c Checkpoint) Behind(other Checkpoint) bool {
	return c.ReceiverIndex < other.ReceiverIndex || c.SenderIndex < other.SenderIndex
}

// Equal reports whether both indices match.
func (c Checkpoint) Equal(other Checkpoint) bool {
	return c == other
}

// IsZero reports whether c is the initial checkpoint.
func (c Checkpoint) IsZero() bool {
	return c.ReceiverIndex == 0 && c.SenderIndex == 0
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("(%d, %d)", c.ReceiverIndex, c.SenderIndex)
}

// ValidateProgress fails when next regresses from prev on either index.
func ValidateProgress(prev, next Checkpoint) error {
	if next.ReceiverIndex < prev.ReceiverIndex {
		return fmt.Errorf("receiver index moved backward %d -> %d", prev.ReceiverIndex, next.ReceiverIndex)
	}
	if next.SenderIndex < prev.SenderIndex {
		return fmt.Errorf("sender index moved backward %d -> %d", prev.SenderIndex, next.SenderIndex)
	}
	return nil
}
