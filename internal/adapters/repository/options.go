package repository

// WriteOptions are the bookkeeping variants of the submission write path.
// All commits honor them regardless of the branch taken.
type WriteOptions struct {
	// RecordAttemptCount increments the attempt counter on every commit.
	RecordAttemptCount bool
	// MultiNickname accumulates every nickname ever used by the key;
	// when false only the latest nickname is kept.
	MultiNickname bool
	// LogRawContent retains the submitted content on the row, further
	// gated per event by its logging flag.
	LogRawContent bool
}

// DefaultWriteOptions matches the reference behavior: full bookkeeping.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		RecordAttemptCount: true,
		MultiNickname:      true,
		LogRawContent:      true,
	}
}
