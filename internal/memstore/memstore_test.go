package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestElementCreateRejectsDuplicateNamePerKind(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	created, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "IBM"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, []types.Ref{}, created.Related["persons"])

	_, err = repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "IBM"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// The same name under another kind is fine.
	_, err = repo.Create(ctx, types.Element{Kind: types.KindProduct, Name: "IBM"})
	assert.NoError(t, err)
}

func TestElementGetChecksKind(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	person, err := repo.Create(ctx, types.Element{Kind: types.KindPerson, Name: "Ada"})
	require.NoError(t, err)

	_, err = repo.Get(ctx, types.KindEntity, person.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := repo.Get(ctx, types.KindPerson, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
}

func TestElementListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	for _, name := range []string{"Charlie", "alpha", "Bravo"} {
		_, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: name})
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, types.KindEntity, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie", "alpha", "Bravo"}, names(all))

	byName, err := repo.List(ctx, types.KindEntity, store.ListOptions{OrderBy: "name", Descending: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Charlie", "Bravo"}, names(byName))

	filtered, err := repo.List(ctx, types.KindEntity, store.ListOptions{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie", "alpha", "Bravo"}, names(filtered))

	filtered, err = repo.List(ctx, types.KindEntity, store.ListOptions{Name: "rav"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bravo"}, names(filtered))

	empty, err := repo.List(ctx, types.KindPerson, store.ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestElementUpdateAbortsOnMutateError(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	created, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "before"})
	require.NoError(t, err)

	_, err = repo.Update(ctx, types.KindEntity, created.ID, func(e *types.Element) error {
		e.Name = "after"
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := repo.Get(ctx, types.KindEntity, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	updated, err := repo.Update(ctx, types.KindEntity, created.ID, func(e *types.Element) error {
		e.Name = "after"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)

	_, err = repo.GetByName(ctx, types.KindEntity, "before")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestElementUpdateRejectsTakenName(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	_, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "one"})
	require.NoError(t, err)
	two, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "two"})
	require.NoError(t, err)

	_, err = repo.Update(ctx, types.KindEntity, two.ID, func(e *types.Element) error {
		e.Name = "one"
		return nil
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestRelationsAreVisibleFromBothSides(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	entity, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "IBM"})
	require.NoError(t, err)
	ada, err := repo.Create(ctx, types.Element{Kind: types.KindPerson, Name: "Ada"})
	require.NoError(t, err)
	alan, err := repo.Create(ctx, types.Element{Kind: types.KindPerson, Name: "Alan"})
	require.NoError(t, err)

	edge := types.Edges[3]
	require.Equal(t, "entity_person", edge.Table)

	added, err := repo.AddRelation(ctx, edge, entity.ID, alan.ID)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddRelation(ctx, edge, entity.ID, ada.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddRelation(ctx, edge, entity.ID, ada.ID)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repo.Get(ctx, types.KindEntity, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.Ref{{ID: alan.ID, Name: "Alan"}, {ID: ada.ID, Name: "Ada"}}, got.Related["persons"])

	rel, ok := types.LookupRelation(types.KindPerson, "entities")
	require.True(t, ok)
	related, err := repo.ListRelated(ctx, rel, ada.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "IBM", related[0].Name)

	removed, err := repo.RemoveRelation(ctx, edge, entity.ID, ada.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveRelation(ctx, edge, entity.ID, ada.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddRelationRequiresBothEndpoints(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	entity, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "IBM"})
	require.NoError(t, err)

	_, err = repo.AddRelation(ctx, types.Edges[3], entity.ID, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestElementDeleteCascadesRelations(t *testing.T) {
	ctx := context.Background()
	repo := NewElementRepository(newStore(t))

	entity, err := repo.Create(ctx, types.Element{Kind: types.KindEntity, Name: "IBM"})
	require.NoError(t, err)
	person, err := repo.Create(ctx, types.Element{Kind: types.KindPerson, Name: "Ada"})
	require.NoError(t, err)
	_, err = repo.AddRelation(ctx, types.Edges[3], entity.ID, person.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, types.KindPerson, person.ID))
	assert.ErrorIs(t, repo.Delete(ctx, types.KindPerson, person.ID), store.ErrNotFound)

	got, err := repo.Get(ctx, types.KindEntity, entity.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Related["persons"])
}

func TestUserRepositoryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newStore(t))

	alice, err := repo.Create(ctx, types.User{Username: "alice", Email: "alice@example.com", Role: types.RoleReader})
	require.NoError(t, err)
	assert.Equal(t, 1, alice.ID)

	_, err = repo.Create(ctx, types.User{Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	_, err = repo.Create(ctx, types.User{Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	bob, err := repo.Create(ctx, types.User{Username: "bob", Email: "bob@example.com"})
	require.NoError(t, err)

	_, err = repo.Update(ctx, bob.ID, func(u *types.User) error {
		u.Email = "alice@example.com"
		return nil
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	updated, err := repo.Update(ctx, bob.ID, func(u *types.User) error {
		u.Role = types.RoleWriter
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleWriter, updated.Role)

	got, err := repo.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RoleWriter, got.Role)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, repo.Delete(ctx, alice.ID))
	_, err = repo.GetByID(ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func names(elements []types.Element) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		out = append(out, e.Name)
	}
	return out
}
