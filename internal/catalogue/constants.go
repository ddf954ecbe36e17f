package catalogue

import "time"

// Indexer defaults
const (
	DefaultIndexBatchSize  = 32
	DefaultIndexFlushDelay = 250 * time.Millisecond
)
