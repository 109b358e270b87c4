package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// RelatedEntity is one member of a record's relation collection. Role is an
// attribute of the edge, only set for actors of a movie.
type RelatedEntity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Role        string `json:"role,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"`
	BirthPlace  string `json:"birth_place,omitempty"`
}

func (e *RelatedEntity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		Name       string          `json:"name"`
		Title      string          `json:"title"`
		PhotoURL   string          `json:"photo_url"`
		Role       string          `json:"role"`
		BirthDate  string          `json:"birth_date"`
		BirthPlace string          `json:"birth_place"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := DecodeID(raw.ID)
	if err != nil {
		return err
	}

	name := raw.Name
	if name == "" {
		name = raw.Title
	}

	*e = RelatedEntity{
		ID:          id,
		DisplayName: name,
		PhotoURL:    raw.PhotoURL,
		Role:        raw.Role,
		BirthDate:   raw.BirthDate,
		BirthPlace:  raw.BirthPlace,
	}
	return nil
}

// Record is the client copy of one server-owned entity.
type Record struct {
	ID        string
	Kind      Kind
	Fields    map[string]any
	Relations map[RelationKind][]RelatedEntity
}

// DecodeID accepts a JSON number or string id and returns its string form.
func DecodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("entity: missing id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("entity: invalid id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("entity: invalid id: %w", err)
	}
	return n.String(), nil
}

// DecodeRecord builds a Record out of a GET /{entity}/{id} payload. Relation
// arrays known for the kind become Relations, every scalar attribute becomes a
// field. Nested objects other than relations are dropped.
func DecodeRecord(kind Kind, data []byte) (*Record, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("entity: decode %s: %w", kind, err)
	}

	id, err := DecodeID(payload["id"])
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        id,
		Kind:      kind,
		Fields:    make(map[string]any, len(payload)),
		Relations: make(map[RelationKind][]RelatedEntity),
	}

	for key, raw := range payload {
		if key == "id" {
			continue
		}
		if kind == KindMovie {
			if rel := RelationKind(key); rel.Valid() {
				var items []RelatedEntity
				if err := json.Unmarshal(raw, &items); err != nil {
					return nil, fmt.Errorf("entity: decode %s.%s: %w", kind, key, err)
				}
				rec.Relations[rel] = items
				continue
			}
		}
		value, ok, err := decodeScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("entity: decode %s.%s: %w", kind, key, err)
		}
		if ok {
			rec.Fields[key] = value
		}
	}

	return rec, nil
}

func decodeScalar(raw json.RawMessage) (any, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, err
	}
	switch t := v.(type) {
	case nil, string, bool:
		return t, true, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	default:
		return nil, false, nil
	}
}

// FieldNames returns the scalar field names in sorted order.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelatedIDs returns the ids currently related through rel.
func (r *Record) RelatedIDs(rel RelationKind) []string {
	items := r.Relations[rel]
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// MergeRoles copies role labels from the role-bearing associations onto the
// actors relation, matching by id. Associations for actors missing from the
// relation are appended.
func (r *Record) MergeRoles(assocs []RelatedEntity) {
	actors := r.Relations[RelationActors]
	index := make(map[string]int, len(actors))
	for i, a := range actors {
		index[a.ID] = i
	}
	for _, assoc := range assocs {
		if i, ok := index[assoc.ID]; ok {
			actors[i].Role = assoc.Role
			continue
		}
		index[assoc.ID] = len(actors)
		actors = append(actors, assoc)
	}
	r.Relations[RelationActors] = actors
}

// Clone returns a deep copy safe to hand to callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		ID:        r.ID,
		Kind:      r.Kind,
		Fields:    make(map[string]any, len(r.Fields)),
		Relations: make(map[RelationKind][]RelatedEntity, len(r.Relations)),
	}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	for k, v := range r.Relations {
		out.Relations[k] = append([]RelatedEntity(nil), v...)
	}
	return out
}

// FormatValue renders a scalar field value for display and text input.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
