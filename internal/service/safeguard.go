package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avoynich/wsprovd/internal/logger"
	"github.com/avoynich/wsprovd/internal/model"
)

// Safeguard throttles account-affecting operations per source host and
// maintains the failure/lockout ledger.
type Safeguard struct {
	attempts model.SafeguardStore
	failures model.FailureStore

	accountTimeout time.Duration
	maxFailures    int
	lockoutDelay   time.Duration

	logger *logger.Logger
	now    func() time.Time

	// hostLocks serializes the read-modify-write on each (op, host)
	// attempt record so two near-simultaneous requests from the same
	// host cannot both be allowed.
	mu        sync.Mutex
	hostLocks map[string]*sync.Mutex
}

func NewSafeguard(
	attempts model.SafeguardStore,
	failures model.FailureStore,
	accountTimeoutSec int,
	maxFailures int,
	lockoutDelayMin int,
	logger *logger.Logger,
) *Safeguard {
	return &Safeguard{
		attempts:       attempts,
		failures:       failures,
		accountTimeout: time.Duration(accountTimeoutSec) * time.Second,
		maxFailures:    maxFailures,
		lockoutDelay:   time.Duration(lockoutDelayMin) * time.Minute,
		logger:         logger,
		now:            time.Now,
		hostLocks:      make(map[string]*sync.Mutex),
	}
}

// CheckAndMark enforces the per-host delay for a guarded operation.
// Loopback hosts bypass the throttle and leave no record, keeping the
// local administrative path quiet. For any other host the attempt
// timestamp is refreshed on every call, throttled or not, so retrying
// early only pushes the window further out.
func (s *Safeguard) CheckAndMark(ctx context.Context, op, host string) error {
	if isLoopback(host) {
		return nil
	}

	lock := s.hostLock(op + "|" + host)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	last, err := s.attempts.GetLastAttempt(ctx, op, host)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("failed to read attempt record: %w", err)
	}

	if err := s.attempts.SetLastAttempt(ctx, op, host, now); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if errors.Is(err, model.ErrNotFound) {
		return nil
	}

	if elapsed := now.Sub(last); elapsed < s.accountTimeout {
		s.logger.Info("Safeguard: attempt throttled",
			"op", op,
			"host", host,
			"elapsed", elapsed.String())
		return &model.ThrottledError{Wait: s.accountTimeout - elapsed}
	}

	return nil
}

// RecordFailure increments the consecutive-failure count for a source
// and arms a lockout once the count reaches the configured threshold.
func (s *Safeguard) RecordFailure(ctx context.Context, failType, source string) error {
	rec, err := s.failures.Increment(ctx, failType, source, s.now())
	if err != nil {
		return fmt.Errorf("failed to log failure: %w", err)
	}

	if rec.Count >= s.maxFailures {
		until := s.now().Add(s.lockoutDelay)
		if err := s.failures.SetLockout(ctx, failType, source, until); err != nil {
			return fmt.Errorf("failed to set lockout: %w", err)
		}
		s.logger.Info("Safeguard: lockout armed",
			"fail_type", failType,
			"source", source,
			"count", rec.Count,
			"until", until.UTC().Format(time.RFC3339))
	}

	return nil
}

// CheckLockout reports whether a source is currently locked out for a
// failure class. An expired lockout resets the counter as a side effect.
func (s *Safeguard) CheckLockout(ctx context.Context, failType, source string) error {
	rec, err := s.failures.Get(ctx, failType, source)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read failure record: %w", err)
	}

	if rec.LockoutUntil == nil {
		return nil
	}

	if rec.LockoutUntil.Before(s.now()) {
		if err := s.failures.Reset(ctx, failType, source); err != nil {
			return fmt.Errorf("failed to reset expired lockout: %w", err)
		}
		return nil
	}

	return &model.LockoutError{Until: *rec.LockoutUntil}
}

func (s *Safeguard) hostLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.hostLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.hostLocks[key] = lock
	}
	return lock
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
