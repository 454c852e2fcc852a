package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
)

var _ repository.CredentialRepository = (*Credentials)(nil)

// Credentials is a map-backed CredentialRepository for single-node and test setups.
type Credentials struct {
	mu      sync.RWMutex
	byEmail map[string]model.Credential
}

// NewCredentials creates an empty repository.
func NewCredentials() *Credentials {
	return &Credentials{byEmail: make(map[string]model.Credential)}
}

func (c *Credentials) Create(_ context.Context, cr *model.Credential) error {
	key := strings.ToLower(cr.Email)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byEmail[key]; ok {
		return errs.ErrAlreadyExists
	}
	cp := *cr
	cp.Email = key
	c.byEmail[key] = cp
	return nil
}

func (c *Credentials) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cr, ok := c.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &cr, nil
}
