package syncer

import "time"

const (
	defaultPollInterval = 30 * time.Second
	defaultRetryDelay   = 30 * time.Second

	progressLogInterval = 1000
)
