package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// UserRepository is the in-memory counterpart of store.UserRepository.
type UserRepository struct {
	s *Store
}

func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{s: s}
}

func (r *UserRepository) List(_ context.Context) ([]types.User, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableUsers, indexID)
	if err != nil {
		return nil, err
	}
	users := make([]types.User, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		users = append(users, *raw.(*types.User))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *UserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()
	return firstUser(txn, indexID, id)
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()
	return firstUser(txn, indexUsername, username)
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	if err := checkUserUnique(txn, user, 0); err != nil {
		return types.User{}, err
	}

	now := store.Stamp(time.Time{})
	user.ID = int(r.s.userSeq.Add(1))
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := user
	if err := txn.Insert(tableUsers, &stored); err != nil {
		return types.User{}, err
	}
	txn.Commit()
	return user, nil
}

func (r *UserRepository) Update(_ context.Context, id int, mutate func(*types.User) error) (types.User, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	user, err := firstUser(txn, indexID, id)
	if err != nil {
		return types.User{}, err
	}
	if err := mutate(&user); err != nil {
		return types.User{}, err
	}
	user.ID = id
	if err := checkUserUnique(txn, user, id); err != nil {
		return types.User{}, err
	}
	user.UpdatedAt = store.Stamp(user.UpdatedAt)
	stored := user
	if err := txn.Insert(tableUsers, &stored); err != nil {
		return types.User{}, err
	}
	txn.Commit()
	return user, nil
}

func (r *UserRepository) Delete(_ context.Context, id int) error {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableUsers, indexID, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return store.ErrNotFound
	}
	if err := txn.Delete(tableUsers, raw); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func firstUser(txn *memdb.Txn, index string, arg any) (types.User, error) {
	raw, err := txn.First(tableUsers, index, arg)
	if err != nil {
		return types.User{}, err
	}
	if raw == nil {
		return types.User{}, store.ErrNotFound
	}
	return *raw.(*types.User), nil
}

func checkUserUnique(txn *memdb.Txn, user types.User, selfID int) error {
	for _, check := range []struct {
		index string
		value string
	}{{indexUsername, user.Username}, {indexEmail, user.Email}} {
		raw, err := txn.First(tableUsers, check.index, check.value)
		if err != nil {
			return err
		}
		if raw != nil && raw.(*types.User).ID != selfID {
			return fmt.Errorf("%w: %s %q", store.ErrDuplicate, check.index, check.value)
		}
	}
	return nil
}
