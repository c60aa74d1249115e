package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mergifyio/engine/pkg/github"
)

const permissionCacheDuration = 24 * time.Hour

// PermissionCache caches user repository permission levels in memory.
// Organization, team, and membership events invalidate slices of it
// through the dispatcher side effects.
type PermissionCache struct {
	memory map[string]permissionEntry
	mu     sync.RWMutex
}

type permissionEntry struct {
	cachedAt   time.Time
	permission string
}

// NewPermissionCache creates an empty permission cache.
func NewPermissionCache() *PermissionCache {
	return &PermissionCache{memory: make(map[string]permissionEntry)}
}

func permissionKey(owner, repo, username string) string {
	return fmt.Sprintf("%s/%s/%s", owner, repo, username)
}

// Get retrieves a cached permission if present and not expired.
func (pc *PermissionCache) Get(owner, repo, username string) (string, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	entry, exists := pc.memory[permissionKey(owner, repo, username)]
	if !exists || time.Since(entry.cachedAt) > permissionCacheDuration {
		return "", false
	}
	return entry.permission, true
}

// Set stores a permission.
func (pc *PermissionCache) Set(owner, repo, username, permission string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.memory[permissionKey(owner, repo, username)] = permissionEntry{
		permission: permission,
		cachedAt:   time.Now(),
	}
}

// Permission returns the user's permission level, filling the cache from
// the GitHub API on a miss.
func (pc *PermissionCache) Permission(ctx context.Context, client *github.Client, owner, repo, username string) (string, error) {
	if permission, ok := pc.Get(owner, repo, username); ok {
		return permission, nil
	}
	permission, err := client.UserPermission(ctx, owner, repo, username)
	if err != nil {
		return "", err
	}
	pc.Set(owner, repo, username, permission)
	return permission, nil
}

// ClearForOrg drops every cached permission under the organization.
func (pc *PermissionCache) ClearForOrg(org string) {
	pc.clearPrefix(org + "/")
}

// ClearForRepo drops every cached permission for one repository.
func (pc *PermissionCache) ClearForRepo(org, repo string) {
	pc.clearPrefix(org + "/" + repo + "/")
}

// ClearForUser drops one user's cached permission on one repository.
func (pc *PermissionCache) ClearForUser(org, repo, username string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.memory, permissionKey(org, repo, username))
}

func (pc *PermissionCache) clearPrefix(prefix string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for key := range pc.memory {
		if strings.HasPrefix(key, prefix) {
			delete(pc.memory, key)
		}
	}
}
