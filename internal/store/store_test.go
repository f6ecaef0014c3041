package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aciencia/apiserver/types"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var elementRowColumns = []string{"id", "kind", "name", "birth_date", "death_date", "image_url", "wiki_url", "created_at", "updated_at"}

func TestElementGetLoadsRelations(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)
	now := time.Now()
	born := time.Date(1911, 6, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM elements WHERE id = \$1 AND kind = \$2`).
		WithArgs(7, "entity").
		WillReturnRows(sqlmock.NewRows(elementRowColumns).
			AddRow(7, "entity", "IBM", born, nil, nil, "https://en.wikipedia.org/wiki/IBM", now, now))
	mock.ExpectQuery(`FROM entity_person j`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "Ada"))
	mock.ExpectQuery(`FROM association_entity j`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectQuery(`FROM product_entity j`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	element, err := repo.Get(context.Background(), types.KindEntity, 7)
	require.NoError(t, err)
	assert.Equal(t, "IBM", element.Name)
	require.NotNil(t, element.BirthDate)
	assert.Equal(t, "1911-06-16", element.BirthDate.String())
	assert.Nil(t, element.DeathDate)
	assert.Nil(t, element.ImageURL)
	require.NotNil(t, element.WikiURL)
	assert.Equal(t, []types.Ref{{ID: 3, Name: "Ada"}}, element.Related["persons"])
	assert.Empty(t, element.Related["associations"])
}

func TestElementGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)

	mock.ExpectQuery(`SELECT .* FROM elements WHERE id = \$1 AND kind = \$2`).
		WithArgs(9, "person").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), types.KindPerson, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestElementCreateTranslatesUniqueViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)

	mock.ExpectQuery(`INSERT INTO elements`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "elements_kind_name_key"})

	_, err := repo.Create(context.Background(), types.Element{Kind: types.KindEntity, Name: "IBM"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestElementCreateTranslatesTruncation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)

	mock.ExpectQuery(`INSERT INTO elements`).
		WillReturnError(&pq.Error{Code: "22001", Column: "name"})

	_, err := repo.Create(context.Background(), types.Element{Kind: types.KindEntity, Name: "IBM"})
	assert.ErrorIs(t, err, ErrTooLong)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestElementListMatchesNameLiterally(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)

	mock.ExpectQuery(`WHERE kind = \$1 AND \(\$2 = '' OR strpos\(lower\(name\), lower\(\$2\)\) > 0\)\s+ORDER BY name DESC`).
		WithArgs("person", "50%_off").
		WillReturnRows(sqlmock.NewRows(elementRowColumns))

	elements, err := repo.List(context.Background(), types.KindPerson, ListOptions{Name: "50%_off", OrderBy: "name", Descending: true})
	require.NoError(t, err)
	assert.Empty(t, elements)
}

func TestStampAdvances(t *testing.T) {
	future := time.Now().Add(time.Hour)
	next := Stamp(future)
	assert.True(t, next.After(future))
	assert.Equal(t, next, next.Truncate(time.Microsecond))

	now := Stamp(time.Time{})
	assert.Equal(t, time.UTC, now.Location())
	assert.True(t, Stamp(now).After(now))
}

func TestElementDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)

	mock.ExpectExec(`DELETE FROM elements WHERE id = \$1 AND kind = \$2`).
		WithArgs(4, "product").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), types.KindProduct, 4), ErrNotFound)
}

func TestAddRelationLocksBothEndpoints(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)
	edge := types.Edge{Table: "entity_person", Owner: types.KindEntity, Member: types.KindPerson}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM elements WHERE id = \$1 AND kind = \$2 FOR SHARE`).
		WithArgs(1, "entity").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`SELECT id FROM elements WHERE id = \$1 AND kind = \$2 FOR SHARE`).
		WithArgs(2, "person").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO entity_person`).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	added, err := repo.AddRelation(context.Background(), edge, 1, 2)
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRemoveRelationMissingMemberRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)
	edge := types.Edge{Table: "entity_person", Owner: types.KindEntity, Member: types.KindPerson}

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR SHARE`).
		WithArgs(1, "entity").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`FOR SHARE`).
		WithArgs(2, "person").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.RemoveRelation(context.Background(), edge, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestElementUpdateAbortsOnMutateError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewElementRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM elements WHERE id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(5, "organization").
		WillReturnRows(sqlmock.NewRows(elementRowColumns).
			AddRow(5, "organization", "ACM", nil, nil, nil, nil, now, now))
	for _, table := range []string{"organization_person", "organization_product"} {
		mock.ExpectQuery(`FROM ` + table + ` j`).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	}
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), types.KindOrganization, 5, func(*types.Element) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestUserCreateStoresRoleName(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", "WRITER", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	user, err := repo.Create(context.Background(), types.User{
		Username:     "alice",
		Email:        "alice@example.com",
		Role:         types.RoleWriter,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, 11, user.ID)
}

func TestUserGetByUsername(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE username = \$1`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "role", "password_hash", "created_at", "updated_at"}).
			AddRow(2, "bob", "bob@example.com", "READER", "hash", now, now))

	user, err := repo.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RoleReader, user.Role)

	mock.ExpectQuery(`FROM users WHERE username = \$1`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
