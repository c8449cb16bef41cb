package timeq

import "errors"

var (
	errBytesPerCycle       = errors.New("timeq: bytes_per_cycle must be > 0")
	errQueueCapacity       = errors.New("timeq: queue_capacity must be >= 0")
	errCompletionsPerCycle = errors.New("timeq: completions_per_cycle must be >= 0")
)
