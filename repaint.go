package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
)

const (
	methodRepaint = "repaint"

	minRepaintBackoff = time.Millisecond
)

// RPCCaller issues a named RPC over the realtime connection.
type RPCCaller interface {
	RPC(ctx context.Context, method string, data []byte) ([]byte, error)
}

// RpcError is returned once every attempt of an RPC has failed.
type RpcError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc %s failed after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
}

func (e *RpcError) Unwrap() error {
	return e.Err
}

type repainter struct {
	rpc     RPCCaller
	retries uint64
	base    time.Duration
	logger  *log.Logger
}

func newRepainter(rpc RPCCaller, retries int, base time.Duration, logger *log.Logger) *repainter {
	if retries < 0 {
		retries = 0
	}
	// retry.NewExponential panics on a non-positive base.
	if base < minRepaintBackoff {
		base = minRepaintBackoff
	}
	return &repainter{
		rpc:     rpc,
		retries: uint64(retries),
		base:    base,
		logger:  logger,
	}
}

// Repaint sends one repaint request, retrying transport and server errors
// with exponential backoff.
func (r *repainter) Repaint(ctx context.Context, req RepaintRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("error marshaling repaint request: %w", err)
	}

	attempts := 0
	b := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		if _, err := r.rpc.RPC(ctx, methodRepaint, data); err != nil {
			r.logger.Warn("repaint attempt failed", "pixel", req.PixelID, "attempt", attempts, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		repaintsTotal.WithLabelValues("error").Inc()
		return &RpcError{Method: methodRepaint, Attempts: attempts, Err: err}
	}

	repaintsTotal.WithLabelValues("ok").Inc()
	return nil
}
