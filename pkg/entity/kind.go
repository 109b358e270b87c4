package entity

// Kind names a record collection on the catalog API. The value doubles as the
// URL path segment of the collection.
type Kind string

const (
	KindMovie    Kind = "movies"
	KindActor    Kind = "actors"
	KindDirector Kind = "directors"
	KindGenre    Kind = "genres"
	KindUser     Kind = "users"
)

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known collections.
func (k Kind) Valid() bool {
	switch k {
	case KindMovie, KindActor, KindDirector, KindGenre, KindUser:
		return true
	}
	return false
}

// RelationKind is one of the many-to-many associations a movie participates in.
type RelationKind string

const (
	RelationActors    RelationKind = "actors"
	RelationDirectors RelationKind = "directors"
	RelationGenres    RelationKind = "genres"
)

// RelationKinds lists every relation kind in display order.
var RelationKinds = []RelationKind{RelationActors, RelationDirectors, RelationGenres}

func (r RelationKind) String() string {
	return string(r)
}

func (r RelationKind) Valid() bool {
	switch r {
	case RelationActors, RelationDirectors, RelationGenres:
		return true
	}
	return false
}

// Target is the collection searched when picking entities for this relation.
func (r RelationKind) Target() Kind {
	switch r {
	case RelationActors:
		return KindActor
	case RelationDirectors:
		return KindDirector
	default:
		return KindGenre
	}
}

// ForeignKey is the body field carrying the child id on relation add requests.
func (r RelationKind) ForeignKey() string {
	switch r {
	case RelationActors:
		return "actor_id"
	case RelationDirectors:
		return "director_id"
	default:
		return "genre_id"
	}
}

// HasRole reports whether the edge carries a role label (actor-in-movie).
func (r RelationKind) HasRole() bool {
	return r == RelationActors
}
