package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pawkeeper/internal/types"
)

// PetRepository provides data access for the pets table. Pet counts feed the
// entitlement validator's resource checks, so CountByOwner must stay cheap.
type PetRepository struct {
	db DBTX
}

// NewPetRepository creates a new PetRepository backed by the given database
// connection (pool or transaction).
func NewPetRepository(db DBTX) *PetRepository {
	return &PetRepository{db: db}
}

// petColumns defines the standard set of columns selected for pet queries.
const petColumns = `p.id, p.owner_id, p.name, p.species, p.breed, p.birth_date,
	p.created_at, p.updated_at`

// scanPet scans a single pet row. The columns must match petColumns order.
func scanPet(row pgx.Row) (*types.Pet, error) {
	var pet types.Pet
	var breed *string

	err := row.Scan(
		&pet.ID,
		&pet.OwnerID,
		&pet.Name,
		&pet.Species,
		&breed,
		&pet.BirthDate,
		&pet.CreatedAt,
		&pet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if breed != nil {
		pet.Breed = *breed
	}
	return &pet, nil
}

// Create inserts a new pet record. The caller must set the ID.
func (r *PetRepository) Create(ctx context.Context, pet *types.Pet) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pets (id, owner_id, name, species, breed, birth_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		pet.ID,
		pet.OwnerID,
		pet.Name,
		pet.Species,
		nilIfEmpty(pet.Breed),
		pet.BirthDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create pet", err)
	}
	return nil
}

// GetByID retrieves a pet by ID scoped to its owner.
func (r *PetRepository) GetByID(ctx context.Context, ownerID, id string) (*types.Pet, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+petColumns+` FROM pets p WHERE p.id = $1 AND p.owner_id = $2`,
		id, ownerID,
	)
	pet, err := scanPet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPet, "pet not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get pet", err)
	}
	return pet, nil
}

// ListByOwner returns all pets for the given owner, newest first.
func (r *PetRepository) ListByOwner(ctx context.Context, ownerID string) ([]*types.Pet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+petColumns+` FROM pets p WHERE p.owner_id = $1 ORDER BY p.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pets", err)
	}
	defer rows.Close()

	var pets []*types.Pet
	for rows.Next() {
		pet, scanErr := scanPet(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pet", scanErr)
		}
		pets = append(pets, pet)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read pets", err)
	}
	return pets, nil
}

// CountByOwner returns the number of pets the owner currently tracks. This is
// the usage count the entitlement validator checks limits against.
func (r *PetRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM pets WHERE owner_id = $1`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count pets", err)
	}
	return count, nil
}

// Delete removes a pet scoped to its owner. Returns ErrCodeNotFoundPet if
// nothing was deleted.
func (r *PetRepository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM pets WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete pet", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPet, "pet not found", nil)
	}
	return nil
}

// nilIfEmpty maps "" to nil for nullable text columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
