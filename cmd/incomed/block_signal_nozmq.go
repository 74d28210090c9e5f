//go:build !zmq

package main

import (
	"context"

	"go.uber.org/zap"
)

// startBlockSignal is unavailable without the zmq build tag; live tailing polls only.
func startBlockSignal(_ context.Context, addr string, logger *zap.Logger) (<-chan struct{}, error) {
	if addr != "" {
		logger.Warn("zmq support not compiled in, ignoring block notifications", zap.String("addr", addr))
	}
	return nil, nil
}
