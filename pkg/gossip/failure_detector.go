package gossip

// Config holds the timeout windows, measured in rounds.
type Config struct {
	// SuspectAfter is the age past which an entry is left out of gossip.
	SuspectAfter int64
	// RemoveAfter is the age past which an entry is deleted.
	RemoveAfter int64
	// Fanout is the number of distinct peers gossiped to per round.
	Fanout int
	// JoinRetry is how many rounds a joining node waits before resending
	// its join request.
	JoinRetry int64
}

func DefaultConfig() Config {
	return Config{
		SuspectAfter: 5,
		RemoveAfter:  20,
		Fanout:       2,
		JoinRetry:    10,
	}
}

// suspected reports whether e is too old to be gossiped.
func (c Config) suspected(e Entry, now int64) bool {
	return now-e.Timestamp > c.SuspectAfter
}

// expired reports whether e is too old to be kept.
func (c Config) expired(e Entry, now int64) bool {
	return now-e.Timestamp > c.RemoveAfter
}
