package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// ElementRepository defines persistence operations for catalog elements and
// their relations.
type ElementRepository interface {
	List(ctx context.Context, kind types.Kind, opts store.ListOptions) ([]types.Element, error)
	Get(ctx context.Context, kind types.Kind, id int) (types.Element, error)
	GetByName(ctx context.Context, kind types.Kind, name string) (types.Element, error)
	Create(ctx context.Context, element types.Element) (types.Element, error)
	Update(ctx context.Context, kind types.Kind, id int, mutate func(*types.Element) error) (types.Element, error)
	Delete(ctx context.Context, kind types.Kind, id int) error
	AddRelation(ctx context.Context, edge types.Edge, ownerID, memberID int) (bool, error)
	RemoveRelation(ctx context.Context, edge types.Edge, ownerID, memberID int) (bool, error)
	ListRelated(ctx context.Context, rel types.Relation, id int) ([]types.Element, error)
}

// EventPublisher receives element change events after they are committed.
type EventPublisher interface {
	PublishElementEvent(ctx context.Context, event types.ElementEvent) error
}

// ImageStore keeps element image blobs.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Precondition inspects the current state of a resource inside the write
// transaction and may veto the write.
type Precondition[T any] func(current T) error

// ElementInput carries the writable element fields. Nil fields are left
// untouched on update; an empty string clears an optional field.
type ElementInput struct {
	Name      *string `json:"name"`
	BirthDate *string `json:"birthDate"`
	DeathDate *string `json:"deathDate"`
	ImageURL  *string `json:"imageUrl"`
	WikiURL   *string `json:"wikiUrl"`
}

// ImageUpload is an image received for an element.
type ImageUpload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

// ElementService encapsulates element use-cases.
type ElementService struct {
	repo      ElementRepository
	events    EventPublisher
	images    ImageStore
	publicURL string
}

// NewElementService builds an ElementService. events and images may be nil.
func NewElementService(repo ElementRepository, events EventPublisher, images ImageStore, publicURL string) *ElementService {
	return &ElementService{
		repo:      repo,
		events:    events,
		images:    images,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *ElementService) List(ctx context.Context, kind types.Kind, opts store.ListOptions) ([]types.Element, error) {
	return s.repo.List(ctx, kind, opts)
}

func (s *ElementService) Get(ctx context.Context, kind types.Kind, id int) (types.Element, error) {
	return s.repo.Get(ctx, kind, id)
}

// Exists reports whether an element of kind is named name.
func (s *ElementService) Exists(ctx context.Context, kind types.Kind, name string) (bool, error) {
	_, err := s.repo.GetByName(ctx, kind, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *ElementService) Create(ctx context.Context, kind types.Kind, in ElementInput) (types.Element, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return types.Element{}, fmt.Errorf("%w: name is required", ErrValidation)
	}

	element := types.Element{Kind: kind}
	if err := in.apply(&element); err != nil {
		return types.Element{}, err
	}

	created, err := s.repo.Create(ctx, element)
	if err != nil {
		return types.Element{}, err
	}
	s.publish(ctx, types.ElementEvent{Action: types.ActionCreated, Kind: kind, ElementID: created.ID})
	return created, nil
}

// Update applies in to the element once check accepts its current state.
func (s *ElementService) Update(ctx context.Context, kind types.Kind, id int, in ElementInput, check Precondition[types.Element]) (types.Element, error) {
	updated, err := s.repo.Update(ctx, kind, id, func(element *types.Element) error {
		if check != nil {
			if err := check(*element); err != nil {
				return err
			}
		}
		return in.apply(element)
	})
	if err != nil {
		return types.Element{}, err
	}
	s.publish(ctx, types.ElementEvent{Action: types.ActionUpdated, Kind: kind, ElementID: id})
	return updated, nil
}

func (s *ElementService) Delete(ctx context.Context, kind types.Kind, id int) error {
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.publish(ctx, types.ElementEvent{Action: types.ActionDeleted, Kind: kind, ElementID: id})
	return nil
}

// SetImage stores img and points the element's imageUrl at it. The blob is
// removed again when the element update fails.
func (s *ElementService) SetImage(ctx context.Context, kind types.Kind, id int, img ImageUpload, check Precondition[types.Element]) (types.Element, error) {
	if s.images == nil {
		return types.Element{}, ErrImagesDisabled
	}
	if _, err := s.repo.Get(ctx, kind, id); err != nil {
		return types.Element{}, err
	}

	key := path.Join("elements", string(kind), fmt.Sprint(id), uuid.NewString()+strings.ToLower(path.Ext(img.Filename)))
	if err := s.images.Put(ctx, key, img.Reader, img.Size, img.ContentType); err != nil {
		return types.Element{}, fmt.Errorf("store image: %w", err)
	}

	url := key
	if s.publicURL != "" {
		url = s.publicURL + "/" + key
	}
	updated, err := s.Update(ctx, kind, id, ElementInput{ImageURL: &url}, check)
	if err != nil {
		if delErr := s.images.Delete(ctx, key); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("key", key).Msg("remove orphaned image")
		}
		return types.Element{}, err
	}
	return updated, nil
}

func (s *ElementService) publish(ctx context.Context, event types.ElementEvent) {
	publishEvent(ctx, s.events, event)
}

func publishEvent(ctx context.Context, events EventPublisher, event types.ElementEvent) {
	if events == nil {
		return
	}
	event.ID = uuid.NewString()
	event.At = time.Now().UTC()
	if err := events.PublishElementEvent(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("action", string(event.Action)).
			Str("kind", string(event.Kind)).
			Int("element_id", event.ElementID).
			Msg("publish element event")
	}
}

func (in ElementInput) apply(element *types.Element) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		if err := checkLength("name", name, maxNameLength); err != nil {
			return err
		}
		element.Name = name
	}

	var err error
	if in.BirthDate != nil {
		if element.BirthDate, err = parseOptionalDate("birthDate", *in.BirthDate); err != nil {
			return err
		}
	}
	if in.DeathDate != nil {
		if element.DeathDate, err = parseOptionalDate("deathDate", *in.DeathDate); err != nil {
			return err
		}
	}
	if in.ImageURL != nil {
		if err := checkLength("imageUrl", *in.ImageURL, maxURLLength); err != nil {
			return err
		}
		element.ImageURL = optionalString(*in.ImageURL)
	}
	if in.WikiURL != nil {
		if err := checkLength("wikiUrl", *in.WikiURL, maxURLLength); err != nil {
			return err
		}
		element.WikiURL = optionalString(*in.WikiURL)
	}
	return nil
}

func parseOptionalDate(field, value string) (*types.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := types.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, field, err)
	}
	return &d, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
