// Package fieldrule describes per-entity validation of inline-edited fields as
// data: each field maps to a list of tagged rules, evaluated in order.
package fieldrule

import (
	"fmt"
	"strings"

	"moviecat-admin/pkg/entity"
)

// Kind tags the variant of a Rule.
type Kind int

const (
	KindRequired Kind = iota
	KindMaxLength
	KindDateRange
	KindFormattedPair
	KindNumericRange
	KindURL
	KindEmail
)

func (k Kind) String() string {
	switch k {
	case KindRequired:
		return "required"
	case KindMaxLength:
		return "max_length"
	case KindDateRange:
		return "date_range"
	case KindFormattedPair:
		return "formatted_pair"
	case KindNumericRange:
		return "numeric_range"
	case KindURL:
		return "url"
	case KindEmail:
		return "email"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule is a tagged union; only the parameters of its Kind are meaningful.
type Rule struct {
	Kind Kind

	// KindMaxLength
	MaxLen int

	// KindDateRange: Layout defaults to DateLayout. NotAfterToday rejects
	// dates later than the current day.
	Layout        string
	NotAfterToday bool

	// KindFormattedPair: Separator splits the value into two non-empty parts;
	// Format is shown to the user ("City, Country").
	Separator string
	Format    string

	// KindNumericRange
	Min, Max float64
}

// DateLayout is the wire format of every date field.
const DateLayout = "2006-01-02"

func Required() Rule { return Rule{Kind: KindRequired} }

func MaxLength(n int) Rule { return Rule{Kind: KindMaxLength, MaxLen: n} }

// Date accepts any well-formed date, including future ones.
func Date() Rule { return Rule{Kind: KindDateRange, Layout: DateLayout} }

// PastDate accepts a well-formed date not later than today.
func PastDate() Rule { return Rule{Kind: KindDateRange, Layout: DateLayout, NotAfterToday: true} }

func CityCountry() Rule {
	return Rule{Kind: KindFormattedPair, Separator: ",", Format: "City, Country"}
}

func NumericRange(min, max float64) Rule {
	return Rule{Kind: KindNumericRange, Min: min, Max: max}
}

func URL() Rule { return Rule{Kind: KindURL} }

func Email() Rule { return Rule{Kind: KindEmail} }

// Table maps field names to their rules. Fields absent from the table accept
// any value.
type Table map[string][]Rule

// Rules returns the rules of one field.
func (t Table) Rules(field string) []Rule {
	return t[field]
}

// Numeric reports whether the field's committed values are numbers, which
// decides how a text draft is sent on the wire.
func (t Table) Numeric(field string) bool {
	for _, r := range t[field] {
		if r.Kind == KindNumericRange {
			return true
		}
	}
	return false
}

var tables = map[entity.Kind]Table{
	entity.KindMovie: {
		"title":        {Required(), MaxLength(200)},
		"description":  {MaxLength(2000)},
		"release_date": {Date()},
		"duration":     {NumericRange(1, 600)},
		"trailer_url":  {URL()},
		"poster_url":   {URL()},
	},
	entity.KindActor: {
		"name":        {Required(), MaxLength(100)},
		"birth_date":  {PastDate()},
		"birth_place": {CityCountry(), MaxLength(200)},
		"photo_url":   {URL()},
		"biography":   {MaxLength(2000)},
	},
	entity.KindDirector: {
		"name":        {Required(), MaxLength(100)},
		"birth_date":  {PastDate()},
		"birth_place": {CityCountry(), MaxLength(200)},
		"photo_url":   {URL()},
		"biography":   {MaxLength(2000)},
	},
	entity.KindGenre: {
		"name": {Required(), MaxLength(100)},
	},
	entity.KindUser: {
		"username":   {Required(), MaxLength(150)},
		"email":      {Required(), Email()},
		"first_name": {MaxLength(150)},
		"last_name":  {MaxLength(150)},
	},
}

// For returns the rule table of an entity kind (empty for unknown kinds).
func For(kind entity.Kind) Table {
	if t, ok := tables[kind]; ok {
		return t
	}
	return Table{}
}

// Label turns a wire field name into the text used in messages.
func Label(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
