package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// maxBackoffDelay caps the exponential schedule; anything beyond five
// minutes would outlive any reasonable node timeout.
const maxBackoffDelay = 5 * time.Minute

// backoffDelay computes delay_ms x multiplier^attempt for the sleep
// before re-invoking a failed node. attempt is the zero-based index of the
// invocation that just failed, so the first retry waits delay_ms.
func backoffDelay(policy *domain.RetryPolicy, attempt int) time.Duration {
	if policy == nil || policy.DelayMS <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	delay := float64(policy.DelayMS) * math.Pow(multiplier, float64(attempt))
	d := time.Duration(delay) * time.Millisecond
	if d > maxBackoffDelay || d < 0 {
		return maxBackoffDelay
	}
	return d
}

// invocationResult is what one node invocation (including its retries)
// reports back to the driver.
type invocationResult struct {
	output   *ports.NodeOutput
	err      *domain.NodeError
	attempts int
	duration time.Duration
}

// executeWithRetry drives the per-node retry state machine: invoke with a
// timeout, sleep the backoff schedule between failed attempts, and bail
// out immediately on cancellation. Cancelled results are never retried.
func executeWithRetry(
	ctx context.Context,
	spec domain.NodeSpec,
	node ports.Node,
	runToken *domain.CancelToken,
	buildContext func() *ports.NodeContext,
) invocationResult {
	maxAttempts := 1
	if spec.RetryPolicy != nil {
		maxAttempts = spec.RetryPolicy.MaxAttempts
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		output, err := invokeWithTimeout(ctx, spec, node, runToken, buildContext())
		elapsed := time.Since(start)
		if err == nil {
			return invocationResult{output: output, attempts: attempt + 1, duration: elapsed}
		}

		nodeErr := domain.AsNodeError(err)
		if nodeErr.Kind == domain.NodeErrCancelled {
			return invocationResult{err: nodeErr, attempts: attempt + 1, duration: elapsed}
		}
		if attempt+1 >= maxAttempts {
			return invocationResult{err: nodeErr, attempts: attempt + 1, duration: elapsed}
		}

		delay := backoffDelay(spec.RetryPolicy, attempt)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-runToken.Done():
				timer.Stop()
				return invocationResult{err: domain.NewNodeCancelledError(), attempts: attempt + 1}
			case <-ctx.Done():
				timer.Stop()
				return invocationResult{err: domain.NewNodeCancelledError(), attempts: attempt + 1}
			}
		} else if runToken.IsCancelled() {
			return invocationResult{err: domain.NewNodeCancelledError(), attempts: attempt + 1}
		}
	}
}

// invokeWithTimeout races one Execute call against the node's timeout and
// the run's cancellation token. The invocation receives its own token so
// that timeout expiry cancels this attempt without touching the run.
func invokeWithTimeout(
	ctx context.Context,
	spec domain.NodeSpec,
	node ports.Node,
	runToken *domain.CancelToken,
	nc *ports.NodeContext,
) (*ports.NodeOutput, error) {
	invToken := nc.Cancellation

	ictx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-invToken.Done():
			cancel()
		case <-runToken.Done():
			invToken.Cancel()
			cancel()
		case <-watcherDone:
		}
	}()

	type outcome struct {
		output *ports.NodeOutput
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		output, err := node.Execute(ictx, nc)
		resultCh <- outcome{output: output, err: err}
	}()

	var timeoutCh <-chan time.Time
	if spec.TimeoutMS > 0 {
		timer := time.NewTimer(time.Duration(spec.TimeoutMS) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-resultCh:
		if runToken.IsCancelled() {
			return nil, domain.NewNodeCancelledError()
		}
		return res.output, res.err
	case <-timeoutCh:
		invToken.Cancel()
		return nil, domain.NewNodeTimeoutError(fmt.Sprintf("node %s exceeded %dms", spec.ID, spec.TimeoutMS))
	case <-runToken.Done():
		// Drain: wait for the cooperative node to notice the cancelled
		// token, then report Cancelled regardless of what it returned.
		invToken.Cancel()
		<-resultCh
		return nil, domain.NewNodeCancelledError()
	}
}
