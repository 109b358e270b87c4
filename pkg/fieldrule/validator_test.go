package fieldrule

import (
	"testing"
	"time"

	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, time.June, 15, 12, 0, 0, 0, time.Local)
}

func TestValidatorCheck(t *testing.T) {
	v := NewValidator(fixedNow)

	tests := []struct {
		name    string
		kind    entity.Kind
		field   string
		value   any
		wantMsg string
	}{
		{name: "actor name required", kind: entity.KindActor, field: "name", value: "  ", wantMsg: "Name is required"},
		{name: "actor name ok", kind: entity.KindActor, field: "name", value: "Tilda Swinton"},
		{name: "actor name too long", kind: entity.KindActor, field: "name", value: repeat("a", 101), wantMsg: "Name must be at most 100 characters"},
		{name: "movie title allows 200", kind: entity.KindMovie, field: "title", value: repeat("x", 200)},
		{name: "movie title 201", kind: entity.KindMovie, field: "title", value: repeat("x", 201), wantMsg: "Title must be at most 200 characters"},
		{name: "birth place pair", kind: entity.KindActor, field: "birth_place", value: "London, United Kingdom"},
		{name: "birth place single part", kind: entity.KindActor, field: "birth_place", value: "London", wantMsg: `Birth place must be formatted as "City, Country"`},
		{name: "birth place empty city", kind: entity.KindDirector, field: "birth_place", value: " , France", wantMsg: `Birth place must be formatted as "City, Country"`},
		{name: "birth place three parts", kind: entity.KindDirector, field: "birth_place", value: "Paris, Ile, France", wantMsg: `Birth place must be formatted as "City, Country"`},
		{name: "birth date today", kind: entity.KindActor, field: "birth_date", value: "2024-06-15"},
		{name: "birth date tomorrow", kind: entity.KindActor, field: "birth_date", value: "2024-06-16", wantMsg: "Birth date cannot be in the future"},
		{name: "birth date malformed", kind: entity.KindActor, field: "birth_date", value: "15/06/2024", wantMsg: "Birth date must be a date formatted as YYYY-MM-DD"},
		{name: "release date may be in the future", kind: entity.KindMovie, field: "release_date", value: "2031-01-01"},
		{name: "duration lower bound", kind: entity.KindMovie, field: "duration", value: int64(1)},
		{name: "duration upper bound as text", kind: entity.KindMovie, field: "duration", value: "600"},
		{name: "duration zero", kind: entity.KindMovie, field: "duration", value: "0", wantMsg: "Duration must be a number between 1 and 600"},
		{name: "duration too long", kind: entity.KindMovie, field: "duration", value: int64(601), wantMsg: "Duration must be a number between 1 and 600"},
		{name: "duration not a number", kind: entity.KindMovie, field: "duration", value: "long", wantMsg: "Duration must be a number between 1 and 600"},
		{name: "trailer url", kind: entity.KindMovie, field: "trailer_url", value: "https://videos.example.com/trailer.mp4"},
		{name: "trailer relative url", kind: entity.KindMovie, field: "trailer_url", value: "/trailer.mp4", wantMsg: "Trailer url must be a valid URL"},
		{name: "optional url may be empty", kind: entity.KindMovie, field: "trailer_url", value: ""},
		{name: "user email", kind: entity.KindUser, field: "email", value: "not-an-email", wantMsg: "Email must be a valid email address"},
		{name: "unknown field passes", kind: entity.KindMovie, field: "whatever", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Check(tt.field, tt.value, For(tt.kind).Rules(tt.field))
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}

func TestTableCoerce(t *testing.T) {
	movies := For(entity.KindMovie)

	assert.Equal(t, int64(120), movies.Coerce("duration", " 120 "))
	assert.Equal(t, 90.5, movies.Coerce("duration", "90.5"))
	assert.Equal(t, "120", movies.Coerce("title", "120"))
	assert.Equal(t, int64(7), movies.Coerce("duration", int64(7)))
}

func TestForUnknownKind(t *testing.T) {
	assert.Empty(t, For(entity.Kind("studios")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "formatted_pair", KindFormattedPair.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
