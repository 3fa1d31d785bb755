// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ratelimit implements the per-peer token bucket: a
// wire-layer gate the external runner consults before handing an
// inbound message to the core, never by the core state machines
// themselves. Known validators
// and unknown peers draw from separate bucket configurations so an
// unauthenticated peer cannot exhaust the budget a committee member
// relies on.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// Config parameterizes one class of peer's token bucket: it holds
// Burst tokens at most, refills at Refill tokens per second, and is
// forgotten after being idle for TTL.
type Config struct {
	// Burst is the maximum number of tokens a bucket can hold, and so
	// the largest burst of messages a peer may send instantaneously.
	Burst float64

	// Refill is the steady-state rate new tokens accrue, in tokens per
	// second.
	Refill float64

	// TTL is how long a peer's bucket is kept after its last request
	// before being evicted by Sweep.
	TTL time.Duration
}

// DefaultValidatorConfig is a generous budget for known committee
// members: bursty by design, since a validator legitimately sends a
// block proposal, its vote, and a handful of provisions in the same
// round.
func DefaultValidatorConfig() Config {
	return Config{Burst: 200, Refill: 100, TTL: 10 * time.Minute}
}

// DefaultUnknownConfig is a conservative budget for peers not present
// in the current committee: separate limits for known validators vs
// unknown peers keep an unauthenticated sender from starving one.
func DefaultUnknownConfig() Config {
	return Config{Burst: 20, Refill: 5, TTL: 2 * time.Minute}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter gates inbound messages per peer, keeping two independent
// sets of buckets (validators, unknown peers) so the two populations
// never compete for the same budget: a log.Logger plus
// prometheus.Registerer threaded through the constructor, one
// mutex-guarded map keyed by peer identity, metrics registered once
// at construction.
type Limiter struct {
	log log.Logger

	validatorCfg Config
	unknownCfg   Config

	mu         sync.Mutex
	validators map[ids.NodeID]*bucket
	unknown    map[ids.NodeID]*bucket

	allowed  prometheus.Counter
	rejected prometheus.Counter
	tracked  prometheus.Gauge
}

// New constructs a Limiter with the given per-class configurations.
// reg may be nil, in which case metrics are not registered (tests need
// not provide a registry).
func New(validatorCfg, unknownCfg Config, logger log.Logger, reg prometheus.Registerer) *Limiter {
	l := &Limiter{
		log:          logger,
		validatorCfg: validatorCfg,
		unknownCfg:   unknownCfg,
		validators:   make(map[ids.NodeID]*bucket),
		unknown:      make(map[ids.NodeID]*bucket),
		allowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_allowed_total",
			Help: "Number of inbound messages admitted by the rate limiter.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Number of inbound messages rejected by the rate limiter.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_tracked_peers",
			Help: "Number of peer buckets currently tracked.",
		}),
	}
	if reg != nil {
		reg.Register(l.allowed)
		reg.Register(l.rejected)
		reg.Register(l.tracked)
	}
	return l
}

// Allow reports whether a message from peer, at time now, may proceed,
// consuming one token from its bucket if so. isValidator selects which
// configuration and bucket set the peer draws from.
func (l *Limiter) Allow(peer ids.NodeID, isValidator bool, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, cfg := l.unknown, l.unknownCfg
	if isValidator {
		set, cfg = l.validators, l.validatorCfg
	}

	b, ok := set[peer]
	if !ok {
		b = &bucket{tokens: cfg.Burst, lastSeen: now}
		set[peer] = b
		l.tracked.Inc()
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * cfg.Refill
		if b.tokens > cfg.Burst {
			b.tokens = cfg.Burst
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		l.rejected.Inc()
		l.log.Debug("rate limit rejected message", "peer", peer, "validator", isValidator)
		return false
	}
	b.tokens--
	l.allowed.Inc()
	return true
}

// Sweep evicts every bucket, in both classes, idle past its class's
// TTL. The runner calls this periodically; it is never invoked from
// core state-machine code.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for peer, b := range l.validators {
		if now.Sub(b.lastSeen) > l.validatorCfg.TTL {
			delete(l.validators, peer)
			l.tracked.Dec()
		}
	}
	for peer, b := range l.unknown {
		if now.Sub(b.lastSeen) > l.unknownCfg.TTL {
			delete(l.unknown, peer)
			l.tracked.Dec()
		}
	}
}

// Len returns the total number of buckets currently tracked, across
// both classes.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.validators) + len(l.unknown)
}
