package billing

import "time"

type Config struct {
	// SubscriberBuffer is the per-subscriber event buffer for purchase update
	// and connection streams.
	SubscriberBuffer int

	// NotifyTimeout bounds how long a backend callback waits on subscribers
	// whose buffers are full before dropping them. It is shared by all
	// subscribers of one event and must be positive.
	NotifyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SubscriberBuffer: 64,
		NotifyTimeout:    250 * time.Millisecond,
	}
}
