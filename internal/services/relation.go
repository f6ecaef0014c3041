package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// RelationService adds, removes and lists the members of a relation. The
// same service serves every edge of the graph, from either side.
type RelationService struct {
	repo   ElementRepository
	events EventPublisher
}

func NewRelationService(repo ElementRepository, events EventPublisher) *RelationService {
	return &RelationService{repo: repo, events: events}
}

// List returns the elements related to element id through rel, in the order
// they were added.
func (s *RelationService) List(ctx context.Context, rel types.Relation, id int) ([]types.Element, error) {
	return s.repo.ListRelated(ctx, rel, id)
}

// CheckEndpoints fails with store.ErrNotFound when element id does not exist
// and with ErrUnacceptableMember when targetID does not.
func (s *RelationService) CheckEndpoints(ctx context.Context, rel types.Relation, id, targetID int) error {
	if _, err := s.repo.Get(ctx, rel.Kind, id); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, rel.Target, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %d", ErrUnacceptableMember, rel.Target, targetID)
		}
		return err
	}
	return nil
}

// Add relates targetID to element id and returns element id afterwards.
// Adding a present member changes nothing.
func (s *RelationService) Add(ctx context.Context, rel types.Relation, id, targetID int) (types.Element, error) {
	ownerID, memberID := rel.Endpoints(id, targetID)
	added, err := s.repo.AddRelation(ctx, rel.Edge, ownerID, memberID)
	if err != nil {
		return types.Element{}, s.classify(ctx, rel, id, targetID, err)
	}
	if added {
		s.publish(ctx, types.ActionRelationAdded, rel, id, targetID)
	}
	return s.repo.Get(ctx, rel.Kind, id)
}

// Remove unrelates targetID from element id. It reports false when targetID
// was not a member.
func (s *RelationService) Remove(ctx context.Context, rel types.Relation, id, targetID int) (types.Element, bool, error) {
	ownerID, memberID := rel.Endpoints(id, targetID)
	removed, err := s.repo.RemoveRelation(ctx, rel.Edge, ownerID, memberID)
	if err != nil {
		return types.Element{}, false, s.classify(ctx, rel, id, targetID, err)
	}
	if removed {
		s.publish(ctx, types.ActionRelationRemoved, rel, id, targetID)
	}
	element, err := s.repo.Get(ctx, rel.Kind, id)
	return element, removed, err
}

// classify turns a not-found from the repository into the endpoint specific
// error, covering an endpoint deleted between the check and the write.
func (s *RelationService) classify(ctx context.Context, rel types.Relation, id, targetID int, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if checkErr := s.CheckEndpoints(ctx, rel, id, targetID); checkErr != nil {
		return checkErr
	}
	return err
}

func (s *RelationService) publish(ctx context.Context, action types.EventAction, rel types.Relation, id, targetID int) {
	publishEvent(ctx, s.events, types.ElementEvent{
		Action:     action,
		Kind:       rel.Kind,
		ElementID:  id,
		Relation:   rel.Edge.Table,
		MemberKind: rel.Target,
		MemberID:   targetID,
	})
}
