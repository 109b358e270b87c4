package fakeapi

import (
	"fmt"

	"moviecat-admin/pkg/entity"
)

// Seeded logins.
const (
	StaffUsername  = "admin"
	StaffPassword  = "admin123"
	ViewerUsername = "viewer"
	ViewerPassword = "viewer123"
)

// Seed fills the store with a small catalog and two logins. It returns the id
// of the first movie.
func Seed(s *Store) (string, error) {
	if _, err := s.AddAccount(StaffUsername, StaffPassword, "admin", true); err != nil {
		return "", err
	}
	if _, err := s.AddAccount(ViewerUsername, ViewerPassword, "user", false); err != nil {
		return "", err
	}

	matrix := s.Insert(entity.KindMovie, map[string]any{
		"title":        "The Matrix",
		"description":  "A hacker learns the truth about his reality.",
		"release_date": "1999-03-31",
		"duration":     int64(136),
		"trailer_url":  "https://example.com/trailers/matrix",
		"poster_url":   "",
	})
	s.Insert(entity.KindMovie, map[string]any{
		"title":        "Heat",
		"description":  "",
		"release_date": "1995-12-15",
		"duration":     int64(170),
		"trailer_url":  "",
		"poster_url":   "",
	})

	actors := []struct{ name, born, place string }{
		{"Keanu Reeves", "1964-09-02", "Beirut, Lebanon"},
		{"Carrie-Anne Moss", "1967-08-21", "Burnaby, Canada"},
		{"Laurence Fishburne", "1961-07-30", "Augusta, USA"},
		{"Hugo Weaving", "1960-04-04", "Ibadan, Nigeria"},
		{"Al Pacino", "1940-04-25", "New York, USA"},
		{"Robert De Niro", "1943-08-17", "New York, USA"},
	}
	actorIds := make([]string, 0, len(actors))
	for _, a := range actors {
		actorIds = append(actorIds, s.Insert(entity.KindActor, map[string]any{
			"name":        a.name,
			"birth_date":  a.born,
			"birth_place": a.place,
			"photo_url":   "",
			"biography":   "",
		}))
	}

	wachowski := s.Insert(entity.KindDirector, map[string]any{
		"name":        "Lana Wachowski",
		"birth_date":  "1965-06-21",
		"birth_place": "Chicago, USA",
		"photo_url":   "",
		"biography":   "",
	})
	s.Insert(entity.KindDirector, map[string]any{
		"name":        "Michael Mann",
		"birth_date":  "1943-02-05",
		"birth_place": "Chicago, USA",
		"photo_url":   "",
		"biography":   "",
	})

	var sciFi string
	for _, name := range []string{"Action", "Science Fiction", "Crime", "Drama", "Thriller"} {
		id := s.Insert(entity.KindGenre, map[string]any{"name": name})
		if name == "Science Fiction" {
			sciFi = id
		}
	}

	links := []struct {
		rel     entity.RelationKind
		childId string
		role    string
	}{
		{entity.RelationActors, actorIds[0], "Neo"},
		{entity.RelationActors, actorIds[1], "Trinity"},
		{entity.RelationDirectors, wachowski, ""},
		{entity.RelationGenres, sciFi, ""},
	}
	for _, l := range links {
		if err := s.Link(matrix, l.rel, l.childId, l.role); err != nil {
			return "", fmt.Errorf("failed to seed %s link: %w", l.rel, err)
		}
	}
	return matrix, nil
}
