package dto

import (
	"strconv"

	"moviecat-admin/pkg/entity"
)

// --- Search / Filter ---

type PaginationMeta struct {
	TotalPages int `json:"total_pages"`
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
}

type FilterResponse struct {
	Items      []entity.RelatedEntity `json:"items"`
	Pagination PaginationMeta         `json:"pagination"`
}

// --- Movie relations ---

type AddActorRequest struct {
	ActorId interface{} `json:"actor_id"`
	Role    string      `json:"role"`
}

type AddDirectorRequest struct {
	DirectorId interface{} `json:"director_id"`
}

type AddGenreRequest struct {
	GenreId interface{} `json:"genre_id"`
}

// NewRelationRequest builds the body of POST /movie-relations/movies/{id}/{kind}.
func NewRelationRequest(kind entity.RelationKind, childId, role string) interface{} {
	id := WireID(childId)
	switch kind {
	case entity.RelationActors:
		return AddActorRequest{ActorId: id, Role: role}
	case entity.RelationDirectors:
		return AddDirectorRequest{DirectorId: id}
	default:
		return AddGenreRequest{GenreId: id}
	}
}

// WireID sends numeric ids as JSON numbers and anything else as a string.
func WireID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// --- Auth ---

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

// ErrorBody covers the message keys upstream servers use for failures.
type ErrorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

func (e ErrorBody) Text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Detail != "":
		return e.Detail
	default:
		return e.Error
	}
}
