package secrets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	entsecret "github.com/codeready-toolchain/loom/ent/secret"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// Store seals and unseals secret values scoped to a repo or org owner. The
// plaintext is never written to the database; every row holds only a
// KEK-sealed envelope.
type Store struct {
	client *ent.Client
	kek    *KEK
}

// NewStore constructs a Store bound to a single KEK.
func NewStore(client *ent.Client, kek *KEK) *Store {
	return &Store{client: client, kek: kek}
}

// Put seals plaintext under the Store's KEK and upserts it under
// (ownerType, ownerID, key), bumping Version on overwrite.
func (s *Store) Put(ctx context.Context, ownerType OwnerType, ownerID, key string, plaintext ids.Secret) (Secret, error) {
	ciphertext, err := seal(plaintext.Reveal(), s.kek)
	if err != nil {
		return Secret{}, err
	}

	existing, err := s.client.Secret.Query().
		Where(
			entsecret.OwnerTypeEQ(entsecret.OwnerType(ownerType)),
			entsecret.OwnerID(ownerID),
			entsecret.Key(key),
		).
		Only(ctx)
	switch {
	case ent.IsNotFound(err):
		row, createErr := s.client.Secret.Create().
			SetID(uuid.NewString()).
			SetOwnerType(entsecret.OwnerType(ownerType)).
			SetOwnerID(ownerID).
			SetKey(key).
			SetCiphertext(ciphertext).
			SetVersion(1).
			Save(ctx)
		if createErr != nil {
			return Secret{}, fmt.Errorf("secrets: create: %w", createErr)
		}
		return fromEntSecret(row), nil
	case err != nil:
		return Secret{}, fmt.Errorf("secrets: query existing: %w", err)
	default:
		row, updateErr := existing.Update().
			SetCiphertext(ciphertext).
			SetVersion(existing.Version + 1).
			Save(ctx)
		if updateErr != nil {
			return Secret{}, fmt.Errorf("secrets: update: %w", updateErr)
		}
		return fromEntSecret(row), nil
	}
}

// Reveal unseals and returns the plaintext value for (ownerType, ownerID,
// key). The caller is responsible for not leaking the returned wrapper's
// Reveal() output into logs.
func (s *Store) Reveal(ctx context.Context, ownerType OwnerType, ownerID, key string) (ids.Secret, error) {
	row, err := s.client.Secret.Query().
		Where(
			entsecret.OwnerTypeEQ(entsecret.OwnerType(ownerType)),
			entsecret.OwnerID(ownerID),
			entsecret.Key(key),
		).
		Only(ctx)
	if ent.IsNotFound(err) {
		return ids.Secret{}, apperr.NotFound(fmt.Sprintf("secret %s/%s not found", ownerID, key))
	}
	if err != nil {
		return ids.Secret{}, fmt.Errorf("secrets: query: %w", err)
	}
	plain, err := unseal(row.Ciphertext, s.kek)
	if err != nil {
		return ids.Secret{}, err
	}
	return ids.NewSecret(plain), nil
}

// List returns the envelope metadata (never plaintext) for every secret
// scoped to an owner, ordered by key.
func (s *Store) List(ctx context.Context, ownerType OwnerType, ownerID string) ([]Secret, error) {
	rows, err := s.client.Secret.Query().
		Where(entsecret.OwnerTypeEQ(entsecret.OwnerType(ownerType)), entsecret.OwnerID(ownerID)).
		Order(ent.Asc(entsecret.FieldKey)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: list: %w", err)
	}
	out := make([]Secret, len(rows))
	for i, row := range rows {
		out[i] = fromEntSecret(row)
	}
	return out, nil
}

// Delete removes a secret envelope. Deleting an unknown key is a no-op.
func (s *Store) Delete(ctx context.Context, ownerType OwnerType, ownerID, key string) error {
	_, err := s.client.Secret.Delete().
		Where(
			entsecret.OwnerTypeEQ(entsecret.OwnerType(ownerType)),
			entsecret.OwnerID(ownerID),
			entsecret.Key(key),
		).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("secrets: delete: %w", err)
	}
	return nil
}

func fromEntSecret(row *ent.Secret) Secret {
	return Secret{
		ID:        ids.SecretID(row.ID),
		OwnerType: OwnerType(row.OwnerType),
		OwnerID:   row.OwnerID,
		Key:       row.Key,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
