// Package memstore keeps the catalog in process memory on top of go-memdb.
// It honours the same contracts as the postgres repositories in package
// store: unique (kind, name), username and email, one write transaction per
// mutation, and cascading removal of join rows. It backs STORE_DRIVER=memory
// and the service and HTTP tests.
package memstore

import (
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
)

const (
	tableElements  = "elements"
	tableRelations = "relations"
	tableUsers     = "users"

	indexID       = "id"
	indexKind     = "kind"
	indexKindName = "kind_name"
	indexOwner    = "owner"
	indexMember   = "member"
	indexUsername = "username"
	indexEmail    = "email"
)

// Store is the shared in-memory database behind the repositories.
type Store struct {
	db *memdb.MemDB

	elementSeq  atomic.Int64
	userSeq     atomic.Int64
	relationSeq atomic.Int64
}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableElements: {
				Name: tableElements,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexKind: {
						Name:    indexKind,
						Indexer: &memdb.StringFieldIndex{Field: "Kind"},
					},
					indexKindName: {
						Name:   indexKindName,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Kind"},
								&memdb.StringFieldIndex{Field: "Name"},
							},
						},
					},
				},
			},
			tableRelations: {
				Name: tableRelations,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Table"},
								&memdb.IntFieldIndex{Field: "OwnerID"},
								&memdb.IntFieldIndex{Field: "MemberID"},
							},
						},
					},
					indexOwner: {
						Name: indexOwner,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Table"},
								&memdb.IntFieldIndex{Field: "OwnerID"},
							},
						},
					},
					indexMember: {
						Name: indexMember,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Table"},
								&memdb.IntFieldIndex{Field: "MemberID"},
							},
						},
					},
				},
			},
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexUsername: {
						Name:    indexUsername,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Username"},
					},
					indexEmail: {
						Name:    indexEmail,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Email"},
					},
				},
			},
		},
	}
}
