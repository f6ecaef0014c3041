package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// elementRecord is the immutable row stored in memdb. Rows are replaced,
// never modified in place.
type elementRecord struct {
	ID        int
	Kind      string
	Name      string
	BirthDate *types.Date
	DeathDate *types.Date
	ImageURL  *string
	WikiURL   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type relationRecord struct {
	Table    string
	OwnerID  int
	MemberID int
	Seq      int64
}

func recordFromElement(e types.Element) *elementRecord {
	return &elementRecord{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Name:      e.Name,
		BirthDate: e.BirthDate,
		DeathDate: e.DeathDate,
		ImageURL:  e.ImageURL,
		WikiURL:   e.WikiURL,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (r *elementRecord) element() types.Element {
	return types.Element{
		ID:        r.ID,
		Kind:      types.Kind(r.Kind),
		Name:      r.Name,
		BirthDate: r.BirthDate,
		DeathDate: r.DeathDate,
		ImageURL:  r.ImageURL,
		WikiURL:   r.WikiURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ElementRepository is the in-memory counterpart of store.ElementRepository.
type ElementRepository struct {
	s *Store
}

func NewElementRepository(s *Store) *ElementRepository {
	return &ElementRepository{s: s}
}

func (r *ElementRepository) List(_ context.Context, kind types.Kind, opts store.ListOptions) ([]types.Element, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableElements, indexKind, string(kind))
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(opts.Name)
	elements := make([]types.Element, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*elementRecord)
		if needle != "" && !strings.Contains(strings.ToLower(rec.Name), needle) {
			continue
		}
		element := rec.element()
		if err := loadRelated(txn, &element); err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}

	sort.SliceStable(elements, func(i, j int) bool {
		if opts.OrderBy == "name" && elements[i].Name != elements[j].Name {
			if opts.Descending {
				return elements[i].Name > elements[j].Name
			}
			return elements[i].Name < elements[j].Name
		}
		if opts.Descending {
			return elements[i].ID > elements[j].ID
		}
		return elements[i].ID < elements[j].ID
	})
	return elements, nil
}

func (r *ElementRepository) Get(_ context.Context, kind types.Kind, id int) (types.Element, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()

	rec, err := getElement(txn, kind, id)
	if err != nil {
		return types.Element{}, err
	}
	element := rec.element()
	if err := loadRelated(txn, &element); err != nil {
		return types.Element{}, err
	}
	return element, nil
}

func (r *ElementRepository) GetByName(_ context.Context, kind types.Kind, name string) (types.Element, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableElements, indexKindName, string(kind), name)
	if err != nil {
		return types.Element{}, err
	}
	if raw == nil {
		return types.Element{}, store.ErrNotFound
	}
	return raw.(*elementRecord).element(), nil
}

func (r *ElementRepository) Create(_ context.Context, element types.Element) (types.Element, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	if err := checkElementName(txn, element.Kind, element.Name, 0); err != nil {
		return types.Element{}, err
	}

	now := store.Stamp(time.Time{})
	element.ID = int(r.s.elementSeq.Add(1))
	element.CreatedAt = now
	element.UpdatedAt = now
	if err := txn.Insert(tableElements, recordFromElement(element)); err != nil {
		return types.Element{}, err
	}
	txn.Commit()

	element.Related = make(map[string][]types.Ref)
	for _, rel := range types.RelationsOf(element.Kind) {
		element.Related[rel.Path()] = []types.Ref{}
	}
	return element, nil
}

// Update applies mutate to the current element inside a single write
// transaction. Write transactions are serialised by memdb, so the state seen
// by mutate cannot change before the commit.
func (r *ElementRepository) Update(_ context.Context, kind types.Kind, id int, mutate func(*types.Element) error) (types.Element, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	rec, err := getElement(txn, kind, id)
	if err != nil {
		return types.Element{}, err
	}
	element := rec.element()
	if err := loadRelated(txn, &element); err != nil {
		return types.Element{}, err
	}
	if err := mutate(&element); err != nil {
		return types.Element{}, err
	}
	if err := checkElementName(txn, kind, element.Name, id); err != nil {
		return types.Element{}, err
	}

	element.ID = id
	element.Kind = kind
	element.UpdatedAt = store.Stamp(element.UpdatedAt)
	if err := txn.Insert(tableElements, recordFromElement(element)); err != nil {
		return types.Element{}, err
	}
	txn.Commit()
	return element, nil
}

func (r *ElementRepository) Delete(_ context.Context, kind types.Kind, id int) error {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	rec, err := getElement(txn, kind, id)
	if err != nil {
		return err
	}
	for _, rel := range types.RelationsOf(kind) {
		index := indexOwner
		if rel.Inverse {
			index = indexMember
		}
		if _, err := txn.DeleteAll(tableRelations, index, rel.Edge.Table, id); err != nil {
			return err
		}
	}
	if err := txn.Delete(tableElements, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (r *ElementRepository) AddRelation(_ context.Context, edge types.Edge, ownerID, memberID int) (bool, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	if err := checkEndpoints(txn, edge, ownerID, memberID); err != nil {
		return false, err
	}
	existing, err := txn.First(tableRelations, indexID, edge.Table, ownerID, memberID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := txn.Insert(tableRelations, &relationRecord{
		Table:    edge.Table,
		OwnerID:  ownerID,
		MemberID: memberID,
		Seq:      r.s.relationSeq.Add(1),
	}); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

func (r *ElementRepository) RemoveRelation(_ context.Context, edge types.Edge, ownerID, memberID int) (bool, error) {
	txn := r.s.db.Txn(true)
	defer txn.Abort()

	if err := checkEndpoints(txn, edge, ownerID, memberID); err != nil {
		return false, err
	}
	existing, err := txn.First(tableRelations, indexID, edge.Table, ownerID, memberID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := txn.Delete(tableRelations, existing); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

func (r *ElementRepository) ListRelated(_ context.Context, rel types.Relation, id int) ([]types.Element, error) {
	txn := r.s.db.Txn(false)
	defer txn.Abort()

	if _, err := getElement(txn, rel.Kind, id); err != nil {
		return nil, err
	}
	rows, err := relatedRows(txn, rel, id)
	if err != nil {
		return nil, err
	}

	elements := make([]types.Element, 0, len(rows))
	for _, row := range rows {
		targetID := row.MemberID
		if rel.Inverse {
			targetID = row.OwnerID
		}
		rec, err := getElement(txn, rel.Target, targetID)
		if err != nil {
			return nil, err
		}
		element := rec.element()
		if err := loadRelated(txn, &element); err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, nil
}

func getElement(txn *memdb.Txn, kind types.Kind, id int) (*elementRecord, error) {
	raw, err := txn.First(tableElements, indexID, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, store.ErrNotFound
	}
	rec := raw.(*elementRecord)
	if rec.Kind != string(kind) {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func checkElementName(txn *memdb.Txn, kind types.Kind, name string, selfID int) error {
	raw, err := txn.First(tableElements, indexKindName, string(kind), name)
	if err != nil {
		return err
	}
	if raw != nil && raw.(*elementRecord).ID != selfID {
		return fmt.Errorf("%w: %s name %q", store.ErrDuplicate, kind, name)
	}
	return nil
}

func checkEndpoints(txn *memdb.Txn, edge types.Edge, ownerID, memberID int) error {
	if _, err := getElement(txn, edge.Owner, ownerID); err != nil {
		return fmt.Errorf("%w: %s %d", err, edge.Owner, ownerID)
	}
	if _, err := getElement(txn, edge.Member, memberID); err != nil {
		return fmt.Errorf("%w: %s %d", err, edge.Member, memberID)
	}
	return nil
}

// relatedRows returns the join rows of rel for element id in insertion order.
func relatedRows(txn *memdb.Txn, rel types.Relation, id int) ([]*relationRecord, error) {
	index := indexOwner
	if rel.Inverse {
		index = indexMember
	}
	it, err := txn.Get(tableRelations, index, rel.Edge.Table, id)
	if err != nil {
		return nil, err
	}
	var rows []*relationRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rows = append(rows, raw.(*relationRecord))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows, nil
}

func loadRelated(txn *memdb.Txn, element *types.Element) error {
	element.Related = make(map[string][]types.Ref)
	for _, rel := range types.RelationsOf(element.Kind) {
		rows, err := relatedRows(txn, rel, element.ID)
		if err != nil {
			return err
		}
		refs := make([]types.Ref, 0, len(rows))
		for _, row := range rows {
			targetID := row.MemberID
			if rel.Inverse {
				targetID = row.OwnerID
			}
			rec, err := getElement(txn, rel.Target, targetID)
			if err != nil {
				return err
			}
			refs = append(refs, types.Ref{ID: rec.ID, Name: rec.Name})
		}
		element.Related[rel.Path()] = refs
	}
	return nil
}
