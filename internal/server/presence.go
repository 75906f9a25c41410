// Package server tracks which display names are currently claimed and
// enforces their uniqueness across all connected sessions.
package server

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// usersCollection is the store collection backing the presence directory,
// persisted as an ordered list of plain strings.
const usersCollection = "users"

// ErrNameTaken reports that a requested display name is already claimed by
// another session. It is user-correctable and reported only to the
// requesting connection.
var ErrNameTaken = errors.New("name taken")

// Presence is the directory of claimed display names. Names are unique under
// case-insensitive comparison after trimming surrounding whitespace; the
// check-then-claim sequence runs as a single step under the directory mutex
// so two concurrent claims for equivalent names cannot both succeed.
type Presence struct {
	mu     sync.Mutex
	store  *FileStore
	names  []string
	logger *zap.Logger
}

// NewPresence loads the persisted name set from the store. It fails with
// ErrStoreCorrupt when existing data cannot be parsed; starting with a
// silently emptied directory would break the durability contract.
func NewPresence(store *FileStore, logger *zap.Logger) (*Presence, error) {
	p := &Presence{store: store, logger: logger}
	if err := store.Load(usersCollection, &p.names); err != nil {
		return nil, err
	}
	logger.Info("presence directory loaded", zap.Int("claimed_names", len(p.names)))
	return p, nil
}

// Claim trims the requested name and reserves it if no current entry matches
// it case-insensitively. The trimmed, case-preserved name is persisted and
// returned; a conflict returns ErrNameTaken and changes nothing.
func (p *Presence) Claim(requested string) (string, error) {
	trimmed := strings.TrimSpace(requested)

	p.mu.Lock()
	defer p.mu.Unlock()

	taken := lo.ContainsBy(p.names, func(existing string) bool {
		return strings.EqualFold(existing, trimmed)
	})
	if taken {
		return "", ErrNameTaken
	}

	p.names = append(p.names, trimmed)
	if err := p.store.Replace(usersCollection, p.names); err != nil {
		p.names = p.names[:len(p.names)-1]
		return "", err
	}

	p.logger.Info("display name claimed", zap.String("name", trimmed))
	return trimmed, nil
}

// Release removes the first persisted entry exactly equal to name. Releasing
// a name that is not present is a no-op.
func (p *Presence) Release(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := slices.Index(p.names, name)
	if idx < 0 {
		return nil
	}

	p.names = slices.Delete(p.names, idx, idx+1)
	if err := p.store.Replace(usersCollection, p.names); err != nil {
		p.names = slices.Insert(p.names, idx, name)
		return err
	}

	p.logger.Info("display name released", zap.String("name", name))
	return nil
}

// Snapshot returns a copy of the currently claimed names in claim order.
func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.names)
}
