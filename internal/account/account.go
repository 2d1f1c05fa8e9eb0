// Package account resolves an account id to its billing-side record, the
// source of the real subscription tier.
package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// Directory looks up accounts.
type Directory interface {
	// Lookup returns the account with id, or an ENOTFOUND error.
	Lookup(ctx context.Context, id string) (*domain.Account, error)
}

// =============================================================================
// In-memory directory
// =============================================================================

// Memory is a Directory held in process memory, used in development and
// tests.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewMemory returns a directory holding accounts.
func NewMemory(accounts ...domain.Account) *Memory {
	m := &Memory{accounts: make(map[string]domain.Account, len(accounts))}
	for _, a := range accounts {
		m.Put(a)
	}
	return m
}

// Put adds or replaces an account.
func (m *Memory) Put(a domain.Account) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.accounts[a.ID] = a
	m.mu.Unlock()
}

// Lookup implements Directory.
func (m *Memory) Lookup(ctx context.Context, id string) (*domain.Account, error) {
	const op = "account.lookup"

	m.mu.RLock()
	a, ok := m.accounts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound(op, "account", id)
	}
	return &a, nil
}

// ParseSeed parses the ACCOUNTS setting: a comma separated list of
// "id:tier:email" or "id:tier:email:name" entries.
func ParseSeed(s string) ([]domain.Account, error) {
	var out []domain.Account
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("account %q: want id:tier:email[:name]", entry)
		}
		tier, ok := domain.ParseTier(parts[1])
		if !ok {
			return nil, fmt.Errorf("account %q: unknown tier %q", entry, parts[1])
		}
		a := domain.Account{ID: parts[0], RealTier: tier, Email: parts[2]}
		if len(parts) == 4 {
			a.Name = parts[3]
		}
		if a.ID == "" {
			return nil, fmt.Errorf("account %q: empty id", entry)
		}
		out = append(out, a)
	}
	return out, nil
}

var _ Directory = (*Memory)(nil)
