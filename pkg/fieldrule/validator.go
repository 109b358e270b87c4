package fieldrule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"

	"github.com/go-playground/validator/v10"
)

// Validator evaluates rule lists with go-playground/validator. The clock
// decides what "today" is for NotAfterToday date rules.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	_ = v.RegisterValidation("formatted_pair", isFormattedPair)
	return &Validator{validate: v, now: now}
}

// isFormattedPair accepts exactly two non-empty parts split by the tag param.
func isFormattedPair(fl validator.FieldLevel) bool {
	sep := fl.Param()
	if sep == "" {
		sep = ","
	}
	parts := strings.Split(fl.Field().String(), sep)
	if len(parts) != 2 {
		return false
	}
	return strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != ""
}

// Check validates value against rules in order and returns the first failure
// as an *apperror.ValidationError. Empty values only fail Required.
func (v *Validator) Check(field string, value any, rules []Rule) error {
	text := strings.TrimSpace(entity.FormatValue(value))
	for _, rule := range rules {
		if rule.Kind != KindRequired && text == "" {
			continue
		}
		if msg := v.check(field, value, text, rule); msg != "" {
			return &apperror.ValidationError{Field: field, Message: msg}
		}
	}
	return nil
}

func (v *Validator) check(field string, value any, text string, rule Rule) string {
	label := Label(field)
	switch rule.Kind {
	case KindRequired:
		if v.validate.Var(text, "required") != nil {
			return fmt.Sprintf("%s is required", label)
		}

	case KindMaxLength:
		if v.validate.Var(text, fmt.Sprintf("max=%d", rule.MaxLen)) != nil {
			return fmt.Sprintf("%s must be at most %d characters", label, rule.MaxLen)
		}

	case KindDateRange:
		layout := rule.Layout
		if layout == "" {
			layout = DateLayout
		}
		if v.validate.Var(text, "datetime="+layout) != nil {
			return fmt.Sprintf("%s must be a date formatted as YYYY-MM-DD", label)
		}
		if rule.NotAfterToday {
			date, _ := time.ParseInLocation(layout, text, time.Local)
			now := v.now().In(time.Local)
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
			if date.After(today) {
				return fmt.Sprintf("%s cannot be in the future", label)
			}
		}

	case KindFormattedPair:
		sep := rule.Separator
		if sep == "" {
			sep = ","
		}
		tag := "formatted_pair=" + strings.ReplaceAll(sep, ",", "0x2C")
		if v.validate.Var(text, tag) != nil {
			return fmt.Sprintf("%s must be formatted as %q", label, rule.Format)
		}

	case KindNumericRange:
		n, ok := ToNumber(value)
		if !ok {
			return fmt.Sprintf("%s must be a number between %s and %s", label, fmtNum(rule.Min), fmtNum(rule.Max))
		}
		if v.validate.Var(n, fmt.Sprintf("min=%s,max=%s", fmtNum(rule.Min), fmtNum(rule.Max))) != nil {
			return fmt.Sprintf("%s must be a number between %s and %s", label, fmtNum(rule.Min), fmtNum(rule.Max))
		}

	case KindURL:
		if v.validate.Var(text, "http_url") != nil {
			return fmt.Sprintf("%s must be a valid URL", label)
		}

	case KindEmail:
		if v.validate.Var(text, "email") != nil {
			return fmt.Sprintf("%s must be a valid email address", label)
		}
	}
	return ""
}

// ToNumber reads a numeric draft that may arrive as text from an input.
func ToNumber(value any) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Coerce converts a text draft of a numeric field to the number sent on the
// wire; other values are returned unchanged.
func (t Table) Coerce(field string, value any) any {
	s, ok := value.(string)
	if !ok || !t.Numeric(field) {
		return value
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return value
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
