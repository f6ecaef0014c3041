package types

import (
	"encoding/json"
	"time"
)

// Kind identifies the concrete variant of an Element. It is persisted next to
// every element row and doubles as the JSON root key of its representation.
type Kind string

const (
	KindEntity       Kind = "entity"
	KindAssociation  Kind = "association"
	KindProduct      Kind = "product"
	KindPerson       Kind = "person"
	KindOrganization Kind = "organization"
)

// Kinds lists every element kind in route registration order.
var Kinds = []Kind{KindEntity, KindAssociation, KindProduct, KindPerson, KindOrganization}

var kindPlurals = map[Kind]string{
	KindEntity:       "entities",
	KindAssociation:  "associations",
	KindProduct:      "products",
	KindPerson:       "persons",
	KindOrganization: "organizations",
}

// Valid reports whether k is a known element kind.
func (k Kind) Valid() bool {
	_, ok := kindPlurals[k]
	return ok
}

// Plural returns the collection name used in routes and list payloads.
func (k Kind) Plural() string {
	return kindPlurals[k]
}

// Element is the common shape shared by every catalog kind.
type Element struct {
	// ID is assigned by the store on creation. Zero means the element has not
	// been persisted yet.
	ID int `db:"id"`

	// Kind is the discriminator of the concrete variant.
	Kind Kind `db:"kind"`

	// Name is never empty and unique among elements of the same kind.
	Name string `db:"name"`

	// BirthDate and DeathDate are optional calendar dates. No ordering
	// between them is enforced.
	BirthDate *Date `db:"birth_date"`
	DeathDate *Date `db:"death_date"`

	// ImageURL and WikiURL are optional and not validated.
	ImageURL *string `db:"image_url"`
	WikiURL  *string `db:"wiki_url"`

	// CreatedAt is the timestamp when the element was stored.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the element row.
	UpdatedAt time.Time `db:"updated_at"`

	// Related holds the members of each relation touching this kind, keyed by
	// relation path (e.g. "entities"). It is loaded explicitly by the store.
	Related map[string][]Ref `db:"-"`
}

// Ref is the id/name pair rendered for a related element.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Fields returns the element attributes without the root key.
func (e Element) Fields() map[string]any {
	body := map[string]any{
		"id":        e.ID,
		"name":      e.Name,
		"birthDate": e.BirthDate,
		"deathDate": e.DeathDate,
		"imageUrl":  e.ImageURL,
		"wikiUrl":   e.WikiURL,
	}
	for _, rel := range RelationsOf(e.Kind) {
		refs := e.Related[rel.Path()]
		if refs == nil {
			refs = []Ref{}
		}
		body[rel.Path()] = refs
	}
	return body
}

// Version identifies the stored revision of the element row.
func (e Element) Version() string {
	return e.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// MarshalJSON renders the element wrapped in a single key named after its
// kind, e.g. {"association": {...}}.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{string(e.Kind): e.Fields()})
}
