package fakeapi

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"moviecat-admin/pkg/entity"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyLinked = errors.New("already linked")
	ErrUnknownField  = errors.New("unknown field")
)

type edge struct {
	ChildID string
	Role    string
}

type Account struct {
	ID           string
	Username     string
	PasswordHash []byte
	Role         string
	IsStaff      bool
}

// Store is the in-memory catalog behind the fake server.
type Store struct {
	mu        sync.RWMutex
	records   map[entity.Kind]map[string]map[string]any
	relations map[string]map[entity.RelationKind][]edge
	accounts  map[string]*Account
	nextID    int64
}

func NewStore() *Store {
	s := &Store{
		records:   make(map[entity.Kind]map[string]map[string]any),
		relations: make(map[string]map[entity.RelationKind][]edge),
		accounts:  make(map[string]*Account),
		nextID:    1,
	}
	for _, kind := range []entity.Kind{entity.KindMovie, entity.KindActor, entity.KindDirector, entity.KindGenre, entity.KindUser} {
		s.records[kind] = make(map[string]map[string]any)
	}
	return s
}

// Insert stores a record and returns its new numeric id.
func (s *Store) Insert(kind entity.Kind, fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	rec := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec["id"] = id
	key := strconv.FormatInt(id, 10)
	s.records[kind][key] = rec
	return key
}

// AddAccount creates a login for the users collection.
func (s *Store) AddAccount(username, password, role string, isStaff bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	id := s.Insert(entity.KindUser, map[string]any{
		"username":   username,
		"email":      username + "@example.com",
		"first_name": "",
		"last_name":  "",
		"is_staff":   isStaff,
	})

	s.mu.Lock()
	s.accounts[username] = &Account{ID: id, Username: username, PasswordHash: hash, Role: role, IsStaff: isStaff}
	s.mu.Unlock()
	return id, nil
}

// Authenticate checks a username / password pair.
func (s *Store) Authenticate(username, password string) (*Account, bool) {
	s.mu.RLock()
	acc, ok := s.accounts[username]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, false
	}
	return acc, true
}

// Get returns the wire representation of a record. Movies embed their
// actors, directors and genres.
func (s *Store) Get(kind entity.Kind, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]any, len(rec)+3)
	for k, v := range rec {
		out[k] = v
	}
	if kind == entity.KindMovie {
		for _, rel := range entity.RelationKinds {
			items := make([]map[string]any, 0)
			for _, e := range s.relations[id][rel] {
				if child, ok := s.records[rel.Target()][e.ChildID]; ok {
					items = append(items, summary(child))
				}
			}
			out[rel.String()] = items
		}
	}
	return out, nil
}

// Update applies a partial field map. Only existing fields can be set.
func (s *Store) Update(kind entity.Kind, id string, fields map[string]any) (map[string]any, error) {
	s.mu.Lock()
	rec, ok := s.records[kind][id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	for k := range fields {
		if _, known := rec[k]; !known || k == "id" {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
	}
	for k, v := range fields {
		rec[k] = v
	}
	s.mu.Unlock()

	return s.Get(kind, id)
}

func (s *Store) Delete(kind entity.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[kind][id]; !ok {
		return ErrNotFound
	}
	delete(s.records[kind], id)
	if kind == entity.KindMovie {
		delete(s.relations, id)
	}
	return nil
}

// Filter pages through a collection ordered by id, matching name (or title
// for movies) case-insensitively.
func (s *Store) Filter(kind entity.Kind, name string, page, perPage int) ([]map[string]any, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	var matched []map[string]any
	for _, rec := range s.records[kind] {
		if needle == "" || strings.Contains(strings.ToLower(displayName(rec)), needle) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i]["id"].(int64) < matched[j]["id"].(int64)
	})

	if perPage < 1 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}
	total := len(matched)
	totalPages := (total + perPage - 1) / perPage

	items := make([]map[string]any, 0, perPage)
	start := (page - 1) * perPage
	for i := start; i < total && i < start+perPage; i++ {
		items = append(items, summary(matched[i]))
	}
	return items, totalPages, total
}

// MovieActors lists the actor associations of a movie with their roles.
func (s *Store) MovieActors(movieId string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[entity.KindMovie][movieId]; !ok {
		return nil, ErrNotFound
	}
	items := make([]map[string]any, 0)
	for _, e := range s.relations[movieId][entity.RelationActors] {
		child, ok := s.records[entity.KindActor][e.ChildID]
		if !ok {
			continue
		}
		item := summary(child)
		item["role"] = e.Role
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) Link(movieId string, rel entity.RelationKind, childId, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[entity.KindMovie][movieId]; !ok {
		return fmt.Errorf("movie %s: %w", movieId, ErrNotFound)
	}
	if _, ok := s.records[rel.Target()][childId]; !ok {
		return fmt.Errorf("%s %s: %w", rel.Target(), childId, ErrNotFound)
	}
	if s.relations[movieId] == nil {
		s.relations[movieId] = make(map[entity.RelationKind][]edge)
	}
	for _, e := range s.relations[movieId][rel] {
		if e.ChildID == childId {
			return ErrAlreadyLinked
		}
	}
	s.relations[movieId][rel] = append(s.relations[movieId][rel], edge{ChildID: childId, Role: role})
	return nil
}

func (s *Store) Unlink(movieId string, rel entity.RelationKind, childId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.relations[movieId][rel]
	for i, e := range edges {
		if e.ChildID == childId {
			s.relations[movieId][rel] = append(edges[:i:i], edges[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func summary(rec map[string]any) map[string]any {
	out := map[string]any{
		"id":   rec["id"],
		"name": displayName(rec),
	}
	for _, key := range []string{"photo_url", "birth_date", "birth_place"} {
		if v, ok := rec[key]; ok {
			out[key] = v
		}
	}
	return out
}

func displayName(rec map[string]any) string {
	for _, key := range []string{"name", "title", "username"} {
		if v, ok := rec[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
