// Package access answers branch permission questions for the stock engine.
package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// levelCacheEntry stores a cached grant level with TTL
type levelCacheEntry struct {
	level     string
	expiresAt time.Time
}

type cacheKey struct {
	userID   uuid.UUID
	branchID uuid.UUID
}

// RepositoryGuard reads roles and branch grants through the repositories.
// Grant levels are cached per (user, branch) for ttl.
type RepositoryGuard struct {
	tx    repository.TransactionManager
	ttl   time.Duration
	now   func() time.Time
	cache sync.Map // cacheKey -> levelCacheEntry
}

func NewRepositoryGuard(tx repository.TransactionManager, ttl time.Duration) *RepositoryGuard {
	return &RepositoryGuard{tx: tx, ttl: ttl, now: time.Now}
}

func (g *RepositoryGuard) IsSuperAdmin(ctx context.Context, actor model.Actor) (bool, error) {
	if actor.IsSuperAdmin() {
		return true, nil
	}
	if actor.UserID == uuid.Nil {
		return false, nil
	}
	user, err := g.tx.Reader().Users().GetByID(ctx, actor.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return user.Role == model.RoleSuperAdmin, nil
}

func (g *RepositoryGuard) IsFullAccess(ctx context.Context, actor model.Actor, branchID uuid.UUID) (bool, error) {
	level, err := g.level(ctx, actor.UserID, branchID)
	if err != nil {
		return false, err
	}
	return level == model.AccessFullAccess, nil
}

// CanMutate holds for super admins and for full access grants
func (g *RepositoryGuard) CanMutate(ctx context.Context, actor model.Actor, branchID uuid.UUID) (bool, error) {
	super, err := g.IsSuperAdmin(ctx, actor)
	if err != nil || super {
		return super, err
	}
	return g.IsFullAccess(ctx, actor, branchID)
}

// Forget drops the cached grant, e.g. right after it changed
func (g *RepositoryGuard) Forget(userID, branchID uuid.UUID) {
	g.cache.Delete(cacheKey{userID: userID, branchID: branchID})
}

func (g *RepositoryGuard) level(ctx context.Context, userID, branchID uuid.UUID) (string, error) {
	key := cacheKey{userID: userID, branchID: branchID}
	if entry, ok := g.cache.Load(key); ok {
		cached := entry.(levelCacheEntry)
		if g.now().Before(cached.expiresAt) {
			return cached.level, nil
		}
	}

	level, err := g.tx.Reader().Permissions().FindLevel(ctx, userID, branchID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load branch permission: %w", err)
	}

	g.cache.Store(key, levelCacheEntry{level: level, expiresAt: g.now().Add(g.ttl)})
	return level, nil
}

// StaticGuard holds grants in memory. Useful for tests and single-tenant setups.
type StaticGuard struct {
	mu     sync.RWMutex
	grants map[cacheKey]string
}

func NewStaticGuard() *StaticGuard {
	return &StaticGuard{grants: make(map[cacheKey]string)}
}

// Grant sets the user's level on a branch
func (g *StaticGuard) Grant(userID, branchID uuid.UUID, level string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[cacheKey{userID: userID, branchID: branchID}] = level
}

func (g *StaticGuard) Revoke(userID, branchID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, cacheKey{userID: userID, branchID: branchID})
}

func (g *StaticGuard) IsSuperAdmin(_ context.Context, actor model.Actor) (bool, error) {
	return actor.IsSuperAdmin(), nil
}

func (g *StaticGuard) IsFullAccess(_ context.Context, actor model.Actor, branchID uuid.UUID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.grants[cacheKey{userID: actor.UserID, branchID: branchID}] == model.AccessFullAccess, nil
}

func (g *StaticGuard) CanMutate(ctx context.Context, actor model.Actor, branchID uuid.UUID) (bool, error) {
	if actor.IsSuperAdmin() {
		return true, nil
	}
	return g.IsFullAccess(ctx, actor, branchID)
}
