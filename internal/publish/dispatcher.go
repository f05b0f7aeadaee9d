package publish

import (
	"context"
	"strings"

	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Policy decides what happens to the remaining platforms after a failure.
type Policy int

const (
	// PolicyAbort stops at the first failing platform and reports only that
	// error. Platforms that already succeeded are not reported.
	PolicyAbort Policy = iota
	// PolicyIsolate attempts every requested platform and reports each one.
	PolicyIsolate
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets the failure policy. The default is PolicyAbort.
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithConcurrency runs the adapters concurrently. Only honoured together
// with PolicyIsolate; abort dispatches are always sequential.
func WithConcurrency(enabled bool) Option {
	return func(d *Dispatcher) { d.concurrent = enabled }
}

// WithLedger enables idempotent resubmission for payloads that carry an
// idempotency key.
func WithLedger(l Ledger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// Dispatcher fans one payload out to the platform adapters.
type Dispatcher struct {
	publishers map[Platform]Publisher
	policy     Policy
	concurrent bool
	ledger     Ledger
}

// NewDispatcher builds a dispatcher over the given adapters. Later adapters
// for the same platform replace earlier ones.
func NewDispatcher(publishers []Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{publishers: make(map[Platform]Publisher, len(publishers))}
	for _, p := range publishers {
		if p == nil {
			continue
		}
		d.publishers[p.Platform()] = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch publishes payload to every requested platform in dispatch order.
// It never deduplicates on its own: the same payload dispatched twice posts
// twice unless it carries an idempotency key and a ledger is configured.
func (d *Dispatcher) Dispatch(ctx context.Context, payload PostPayload) DispatchResult {
	targets := requestedTargets(payload)
	if len(targets) == 0 {
		return DispatchResult{OK: true, Results: map[Platform]Result{}}
	}

	id := uuid.NewString()
	logutil.Infof("dispatch %s: targets=%s media=%d", id, joinPlatforms(targets), len(payload.Media))

	if d.policy == PolicyIsolate {
		return d.dispatchIsolated(ctx, id, payload, targets)
	}

	results := make(map[Platform]Result, len(targets))
	for _, platform := range targets {
		res, err := d.publishOne(ctx, payload, platform)
		if err != nil {
			logutil.Errorf("dispatch %s: %s failed, aborting: %v", id, platform, err)
			return DispatchResult{OK: false, Error: err.Error(), ErrorKind: KindOf(err)}
		}
		logutil.Infof("dispatch %s: posted to %s", id, platform)
		results[platform] = res
	}

	return DispatchResult{OK: true, Results: results}
}

type outcome struct {
	result Result
	err    error
}

func (d *Dispatcher) dispatchIsolated(ctx context.Context, id string, payload PostPayload, targets []Platform) DispatchResult {
	outcomes := make([]outcome, len(targets))

	if d.concurrent {
		var g errgroup.Group
		for i, platform := range targets {
			g.Go(func() error {
				res, err := d.publishOne(ctx, payload, platform)
				outcomes[i] = outcome{result: res, err: err}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, platform := range targets {
			res, err := d.publishOne(ctx, payload, platform)
			outcomes[i] = outcome{result: res, err: err}
		}
	}

	out := DispatchResult{
		OK:       true,
		Results:  make(map[Platform]Result),
		Failures: make(map[Platform]Failure),
	}
	var msgs []string
	for i, platform := range targets {
		o := outcomes[i]
		if o.err == nil {
			logutil.Infof("dispatch %s: posted to %s", id, platform)
			out.Results[platform] = o.result
			continue
		}
		logutil.Errorf("dispatch %s: %s failed: %v", id, platform, o.err)
		kind := KindOf(o.err)
		out.Failures[platform] = Failure{Platform: platform, Kind: kind, Reason: o.err.Error()}
		if out.OK {
			out.ErrorKind = kind
		}
		out.OK = false
		msgs = append(msgs, string(platform)+": "+o.err.Error())
	}
	if !out.OK {
		out.Error = strings.Join(msgs, "; ")
	}
	return out
}

func (d *Dispatcher) publishOne(ctx context.Context, payload PostPayload, platform Platform) (Result, error) {
	key := strings.TrimSpace(payload.IdempotencyKey)
	useLedger := d.ledger != nil && key != ""

	if useLedger {
		prior, found, err := d.ledger.Lookup(ctx, key, platform)
		if err != nil {
			return Result{}, Transport(platform, err)
		}
		if found {
			logutil.Debugf("%s: replaying recorded result for key %s", platform, key)
			prior.Platform = platform
			prior.Replayed = true
			return prior, nil
		}
	}

	pub, ok := d.publishers[platform]
	if !ok {
		return Result{}, ConfigErrorf(platform, "%s is not configured", platform)
	}

	res, err := pub.Publish(ctx, payload)
	if err != nil {
		return Result{}, Transport(platform, err)
	}
	res.Platform = platform

	if useLedger {
		if err := d.ledger.Record(ctx, key, res); err != nil {
			logutil.Warnf("%s: record idempotency key %s: %v", platform, key, err)
		}
	}
	return res, nil
}

func requestedTargets(payload PostPayload) []Platform {
	var targets []Platform
	for _, p := range dispatchOrder {
		if payload.Wants(p) {
			targets = append(targets, p)
		}
	}
	return targets
}

func joinPlatforms(ps []Platform) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
