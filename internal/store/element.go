package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aciencia/apiserver/types"
)

// ListOptions filters and orders element listings.
type ListOptions struct {
	// Name keeps elements whose name contains it, ignoring case.
	Name string

	// OrderBy is "id" (default) or "name".
	OrderBy string

	// Descending reverses the order.
	Descending bool
}

// ElementRepository handles persistence for catalog elements and the join
// tables that relate them.
type ElementRepository struct {
	db *sql.DB
}

func NewElementRepository(db *sql.DB) *ElementRepository {
	return &ElementRepository{db: db}
}

const elementColumns = `id, kind, name, birth_date, death_date, image_url, wiki_url, created_at, updated_at`

func (r *ElementRepository) List(ctx context.Context, kind types.Kind, opts ListOptions) ([]types.Element, error) {
	orderBy := "id"
	if opts.OrderBy == "name" {
		orderBy = "name"
	}
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM elements
		WHERE kind = $1 AND ($2 = '' OR strpos(lower(name), lower($2)) > 0)
		ORDER BY %s %s`, elementColumns, orderBy, direction)
	rows, err := r.db.QueryContext(ctx, query, string(kind), opts.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	elements := make([]types.Element, 0)
	for rows.Next() {
		element, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range elements {
		if err := loadRelated(ctx, r.db, &elements[i]); err != nil {
			return nil, err
		}
	}
	return elements, nil
}

func (r *ElementRepository) Get(ctx context.Context, kind types.Kind, id int) (types.Element, error) {
	element, err := getElement(ctx, r.db, kind, id, false)
	if err != nil {
		return types.Element{}, err
	}
	if err := loadRelated(ctx, r.db, &element); err != nil {
		return types.Element{}, err
	}
	return element, nil
}

func (r *ElementRepository) GetByName(ctx context.Context, kind types.Kind, name string) (types.Element, error) {
	query := fmt.Sprintf(`SELECT %s FROM elements WHERE kind = $1 AND name = $2`, elementColumns)
	element, err := scanElement(r.db.QueryRowContext(ctx, query, string(kind), name))
	if err != nil {
		return types.Element{}, translate(err)
	}
	return element, nil
}

func (r *ElementRepository) Create(ctx context.Context, element types.Element) (types.Element, error) {
	now := Stamp(time.Time{})
	element.CreatedAt = now
	element.UpdatedAt = now

	const query = `
		INSERT INTO elements (kind, name, birth_date, death_date, image_url, wiki_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		string(element.Kind),
		element.Name,
		dateArg(element.BirthDate),
		dateArg(element.DeathDate),
		element.ImageURL,
		element.WikiURL,
		element.CreatedAt,
		element.UpdatedAt,
	).Scan(&element.ID); err != nil {
		return types.Element{}, translate(err)
	}

	element.Related = make(map[string][]types.Ref)
	return element, nil
}

// Update locks the element row, hands the current state (relations included)
// to mutate and writes the result back in the same transaction. An error from
// mutate aborts the transaction and is returned as is.
func (r *ElementRepository) Update(ctx context.Context, kind types.Kind, id int, mutate func(*types.Element) error) (types.Element, error) {
	var updated types.Element
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		element, err := getElement(ctx, tx, kind, id, true)
		if err != nil {
			return err
		}
		if err := loadRelated(ctx, tx, &element); err != nil {
			return err
		}
		if err := mutate(&element); err != nil {
			return err
		}
		element.UpdatedAt = Stamp(element.UpdatedAt)

		const query = `
			UPDATE elements
			SET name = $1,
				birth_date = $2,
				death_date = $3,
				image_url = $4,
				wiki_url = $5,
				updated_at = $6
			WHERE id = $7 AND kind = $8`
		if _, err := tx.ExecContext(
			ctx,
			query,
			element.Name,
			dateArg(element.BirthDate),
			dateArg(element.DeathDate),
			element.ImageURL,
			element.WikiURL,
			element.UpdatedAt,
			element.ID,
			string(kind),
		); err != nil {
			return translate(err)
		}
		updated = element
		return nil
	})
	if err != nil {
		return types.Element{}, err
	}
	return updated, nil
}

func (r *ElementRepository) Delete(ctx context.Context, kind types.Kind, id int) error {
	const query = `DELETE FROM elements WHERE id = $1 AND kind = $2`
	result, err := r.db.ExecContext(ctx, query, id, string(kind))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRelation inserts the (owner, member) join row. It reports false when
// the row already existed.
func (r *ElementRepository) AddRelation(ctx context.Context, edge types.Edge, ownerID, memberID int) (bool, error) {
	var added bool
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockEndpoints(ctx, tx, edge, ownerID, memberID); err != nil {
			return err
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (owner_id, member_id)
			VALUES ($1, $2)
			ON CONFLICT (owner_id, member_id) DO NOTHING`, edge.Table)
		result, err := tx.ExecContext(ctx, query, ownerID, memberID)
		if err != nil {
			return translate(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		added = affected > 0
		return nil
	})
	return added, err
}

// RemoveRelation deletes the (owner, member) join row. It reports false when
// there was nothing to delete.
func (r *ElementRepository) RemoveRelation(ctx context.Context, edge types.Edge, ownerID, memberID int) (bool, error) {
	var removed bool
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockEndpoints(ctx, tx, edge, ownerID, memberID); err != nil {
			return err
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1 AND member_id = $2`, edge.Table)
		result, err := tx.ExecContext(ctx, query, ownerID, memberID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		removed = affected > 0
		return nil
	})
	return removed, err
}

// ListRelated returns the elements at the other end of rel for element id,
// in the order the join rows were inserted.
func (r *ElementRepository) ListRelated(ctx context.Context, rel types.Relation, id int) ([]types.Element, error) {
	if _, err := getElement(ctx, r.db, rel.Kind, id, false); err != nil {
		return nil, err
	}

	joinColumn, filterColumn := "member_id", "owner_id"
	if rel.Inverse {
		joinColumn, filterColumn = "owner_id", "member_id"
	}
	query := fmt.Sprintf(`
		SELECT e.id, e.kind, e.name, e.birth_date, e.death_date, e.image_url, e.wiki_url, e.created_at, e.updated_at
		FROM %s j
		JOIN elements e ON e.id = j.%s
		WHERE j.%s = $1
		ORDER BY j.seq`, rel.Edge.Table, joinColumn, filterColumn)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	elements := make([]types.Element, 0)
	for rows.Next() {
		element, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range elements {
		if err := loadRelated(ctx, r.db, &elements[i]); err != nil {
			return nil, err
		}
	}
	return elements, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElement(row rowScanner) (types.Element, error) {
	var (
		element   types.Element
		kind      string
		birthDate sql.NullTime
		deathDate sql.NullTime
		imageURL  sql.NullString
		wikiURL   sql.NullString
	)
	if err := row.Scan(
		&element.ID,
		&kind,
		&element.Name,
		&birthDate,
		&deathDate,
		&imageURL,
		&wikiURL,
		&element.CreatedAt,
		&element.UpdatedAt,
	); err != nil {
		return types.Element{}, err
	}

	element.Kind = types.Kind(kind)
	element.BirthDate = nullDate(birthDate)
	element.DeathDate = nullDate(deathDate)
	element.ImageURL = nullString(imageURL)
	element.WikiURL = nullString(wikiURL)
	return element, nil
}

func getElement(ctx context.Context, q queryer, kind types.Kind, id int, forUpdate bool) (types.Element, error) {
	query := fmt.Sprintf(`SELECT %s FROM elements WHERE id = $1 AND kind = $2`, elementColumns)
	if forUpdate {
		query += ` FOR UPDATE`
	}
	element, err := scanElement(q.QueryRowContext(ctx, query, id, string(kind)))
	if err != nil {
		return types.Element{}, translate(err)
	}
	return element, nil
}

func loadRelated(ctx context.Context, q queryer, element *types.Element) error {
	element.Related = make(map[string][]types.Ref)
	for _, rel := range types.RelationsOf(element.Kind) {
		joinColumn, filterColumn := "member_id", "owner_id"
		if rel.Inverse {
			joinColumn, filterColumn = "owner_id", "member_id"
		}
		query := fmt.Sprintf(`
			SELECT e.id, e.name
			FROM %s j
			JOIN elements e ON e.id = j.%s
			WHERE j.%s = $1
			ORDER BY j.seq`, rel.Edge.Table, joinColumn, filterColumn)
		rows, err := q.QueryContext(ctx, query, element.ID)
		if err != nil {
			return err
		}
		refs := make([]types.Ref, 0)
		for rows.Next() {
			var ref types.Ref
			if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
				_ = rows.Close()
				return err
			}
			refs = append(refs, ref)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return err
		}
		element.Related[rel.Path()] = refs
	}
	return nil
}

func lockEndpoints(ctx context.Context, tx *sql.Tx, edge types.Edge, ownerID, memberID int) error {
	const query = `SELECT id FROM elements WHERE id = $1 AND kind = $2 FOR SHARE`
	for _, endpoint := range []struct {
		id   int
		kind types.Kind
	}{{ownerID, edge.Owner}, {memberID, edge.Member}} {
		var found int
		if err := tx.QueryRowContext(ctx, query, endpoint.id, string(endpoint.kind)).Scan(&found); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s %d", ErrNotFound, endpoint.kind, endpoint.id)
			}
			return err
		}
	}
	return nil
}

func dateArg(d *types.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

func nullDate(value sql.NullTime) *types.Date {
	if !value.Valid {
		return nil
	}
	d := types.NewDate(value.Time)
	return &d
}

func nullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
