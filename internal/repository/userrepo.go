// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CredentialRepository is the identity store this core reads from and writes hashes to.
type CredentialRepository interface {
	// Create inserts a new credential; a duplicate email yields errs.ErrConflict.
	Create(ctx context.Context, c *model.Credential) error
	// GetByID loads a credential by user ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Credential, error)
	// GetByEmail loads a credential by its identity key.
	GetByEmail(ctx context.Context, email string) (*model.Credential, error)
	// UpdateHash replaces the stored secret hash.
	UpdateHash(ctx context.Context, id uuid.UUID, hash string) error
}
