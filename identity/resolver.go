// Package identity implements the identity resolver (C6): turning an
// address into a display identity, backed by a short-lived cache, request
// coalescing for concurrent lookups of the same address, and an injectable
// name-lookup capability (ENS in production, a stub in tests). Grounded on
// the teacher's x/entity service, which resolves a CCID to a profile the
// same way — cached, refreshed on demand, falling back to the bare
// identifier when resolution fails.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opchan/core/codec"
	"github.com/opchan/core/core"
	"github.com/opchan/core/replica"
)

// freshnessWindow is how long a cached identity is trusted before Get
// refreshes it. spec.md §4.5 fixes this at five minutes.
const freshnessWindow = 5 * time.Minute

// NameLookup resolves a wallet address to an external display name and
// avatar (ENS, in production). It is the one operation in this package
// that may suspend the caller (a network round-trip), per spec.md's
// concurrency model.
type NameLookup interface {
	Lookup(ctx context.Context, address string) (name string, avatarURL string, err error)
}

// NoopNameLookup never resolves anything; useful for anonymous-only setups
// and tests. Grounded on the teacher's pattern of a null-object service
// implementation for optional external dependencies.
type NoopNameLookup struct{}

func (NoopNameLookup) Lookup(ctx context.Context, address string) (string, string, error) {
	return "", "", nil
}

type cacheEntry struct {
	identity    core.UserIdentity
	refreshedAt time.Time
}

// Resolver is C6.
type Resolver struct {
	mu sync.Mutex

	replica *replica.Replica
	lookup  NameLookup
	clock   func() time.Time

	cache    map[string]cacheEntry
	inflight map[string]chan struct{}
}

// NewResolver builds a Resolver. clock is injected so freshness windows are
// deterministic in tests.
func NewResolver(r *replica.Replica, lookup NameLookup, clock func() time.Time) *Resolver {
	if lookup == nil {
		lookup = NoopNameLookup{}
	}
	return &Resolver{
		replica:  r,
		lookup:   lookup,
		clock:    clock,
		cache:    map[string]cacheEntry{},
		inflight: map[string]chan struct{}{},
	}
}

// Get resolves address to a UserIdentity. Anonymous (UUIDv4) authors always
// bypass the cache and the name lookup entirely — there is nothing external
// to resolve. fresh forces a refresh even if the cached entry is within the
// freshness window; concurrent Get calls for the same address while a
// refresh is in flight coalesce onto the same lookup instead of each
// issuing their own.
func (res *Resolver) Get(ctx context.Context, address string, fresh bool) (core.UserIdentity, error) {
	normalized := strings.ToLower(address)

	if codec.IsUUIDv4(address) {
		return res.anonymousIdentity(address), nil
	}

	res.mu.Lock()
	if entry, ok := res.cache[normalized]; ok && !fresh && res.clock().Sub(entry.refreshedAt) < freshnessWindow {
		res.mu.Unlock()
		return entry.identity, nil
	}

	if wait, inProgress := res.inflight[normalized]; inProgress {
		res.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return core.UserIdentity{}, ctx.Err()
		}
		res.mu.Lock()
		entry := res.cache[normalized]
		res.mu.Unlock()
		return entry.identity, nil
	}

	done := make(chan struct{})
	res.inflight[normalized] = done
	res.mu.Unlock()

	identity, err := res.refresh(ctx, normalized)

	res.mu.Lock()
	delete(res.inflight, normalized)
	res.mu.Unlock()
	close(done)

	return identity, err
}

func (res *Resolver) refresh(ctx context.Context, normalized string) (core.UserIdentity, error) {
	name, avatar, lookupErr := res.lookup.Lookup(ctx, normalized)

	identity := core.UserIdentity{
		Address:            normalized,
		EnsName:            name,
		EnsAvatar:          avatar,
		DisplayPreference:  core.DisplayAddress,
		VerificationStatus: core.VerificationWalletUnconnected,
		LastUpdatedMs:      res.clock().UnixMilli(),
	}
	if name != "" {
		identity.VerificationStatus = core.VerificationEnsVerified
	}

	if res.replica != nil {
		if msg, ok := res.replica.LatestProfileUpdate(normalized); ok {
			identity.DisplayPreference = msg.ProfileUpdate.DisplayPreference
			if msg.ProfileUpdate.CallSign != nil {
				identity.CallSign = *msg.ProfileUpdate.CallSign
			}
		}
	}
	identity.DisplayName = displayName(identity)

	res.mu.Lock()
	res.cache[normalized] = cacheEntry{identity: identity, refreshedAt: res.clock()}
	res.mu.Unlock()

	if lookupErr != nil {
		slog.WarnContext(ctx, fmt.Sprintf("resolution failed for %s: %v", normalized, lookupErr), slog.String("module", "identity"))
		return identity, core.ErrResolutionFailure{Address: normalized, Cause: lookupErr}
	}
	return identity, nil
}

func (res *Resolver) anonymousIdentity(sessionID string) core.UserIdentity {
	identity := core.UserIdentity{
		Address:            sessionID,
		DisplayPreference:  core.DisplayAddress,
		VerificationStatus: core.VerificationAnonymous,
		LastUpdatedMs:      res.clock().UnixMilli(),
	}
	if res.replica != nil {
		if msg, ok := res.replica.LatestProfileUpdate(sessionID); ok {
			identity.DisplayPreference = msg.ProfileUpdate.DisplayPreference
			if msg.ProfileUpdate.CallSign != nil {
				identity.CallSign = *msg.ProfileUpdate.CallSign
			}
		}
	}
	identity.DisplayName = displayName(identity)
	return identity
}

// displayName derives the display string: the call sign when CallSign is
// preferred and one is set, otherwise the ENS name, otherwise a shortened
// form of the address/session id (its first 6 and last 4 characters).
func displayName(identity core.UserIdentity) string {
	if identity.DisplayPreference == core.DisplayCallSign && identity.CallSign != "" {
		return identity.CallSign
	}
	if identity.EnsName != "" {
		return identity.EnsName
	}
	return shortenAddress(identity.Address)
}

func shortenAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// Invalidate drops a cached identity, forcing the next Get to refresh.
func (res *Resolver) Invalidate(address string) {
	res.mu.Lock()
	defer res.mu.Unlock()
	delete(res.cache, strings.ToLower(address))
}
