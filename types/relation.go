package types

// Edge is a many-to-many relation between two element kinds. Each edge is
// stored in its own join table, named by Table.
type Edge struct {
	Table  string
	Owner  Kind
	Member Kind
}

// Edges is the complete relation graph of the catalog.
var Edges = []Edge{
	{Table: "association_entity", Owner: KindAssociation, Member: KindEntity},
	{Table: "product_entity", Owner: KindProduct, Member: KindEntity},
	{Table: "product_person", Owner: KindProduct, Member: KindPerson},
	{Table: "entity_person", Owner: KindEntity, Member: KindPerson},
	{Table: "organization_person", Owner: KindOrganization, Member: KindPerson},
	{Table: "organization_product", Owner: KindOrganization, Member: KindProduct},
}

// Relation is an edge seen from the routes of one of its two kinds.
type Relation struct {
	Edge Edge

	// Kind is the kind whose routes expose the relation.
	Kind Kind

	// Target is the kind at the other end.
	Target Kind

	// Inverse is true when Kind is the member side of Edge.
	Inverse bool
}

// Path is the route segment and JSON key of the relation, the plural of Target.
func (r Relation) Path() string {
	return r.Target.Plural()
}

// Endpoints maps a route element id and a target id onto the join row.
func (r Relation) Endpoints(id, targetID int) (ownerID, memberID int) {
	if r.Inverse {
		return targetID, id
	}
	return id, targetID
}

// RelationsOf returns every relation exposed by kind k, owning side first.
func RelationsOf(k Kind) []Relation {
	var rels []Relation
	for _, edge := range Edges {
		if edge.Owner == k {
			rels = append(rels, Relation{Edge: edge, Kind: k, Target: edge.Member})
		}
	}
	for _, edge := range Edges {
		if edge.Member == k {
			rels = append(rels, Relation{Edge: edge, Kind: k, Target: edge.Owner, Inverse: true})
		}
	}
	return rels
}

// LookupRelation finds the relation of kind k exposed under path.
func LookupRelation(k Kind, path string) (Relation, bool) {
	for _, rel := range RelationsOf(k) {
		if rel.Path() == path {
			return rel, true
		}
	}
	return Relation{}, false
}
