package fields

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"tracker/internal/json"
	"tracker/internal/models"
)

var (
	fieldKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	validate        = validator.New()
)

// ValidateDefinition checks a definition in isolation. Uniqueness of the key
// within the workspace is checked by the Registry.
func ValidateDefinition(d models.FieldDefinition) error {
	if strings.TrimSpace(d.WorkspaceID) == "" {
		return models.NewValidationErrorf("workspace id must not be empty")
	}
	if !fieldKeyPattern.MatchString(d.FieldKey) {
		return models.NewValidationErrorf("invalid field key %q: use lowercase letters, digits and underscores", d.FieldKey)
	}
	if strings.TrimSpace(d.Name) == "" {
		return models.NewValidationErrorf("field %s: name must not be empty", d.FieldKey)
	}
	if !d.FieldType.IsValid() {
		return models.NewValidationErrorf("field %s: unknown field type %q", d.FieldKey, d.FieldType)
	}

	opts := d.Options
	if d.FieldType.RequiresOptions() && len(opts.Choices) == 0 {
		return models.NewValidationErrorf("field %s: %s fields require at least one option", d.FieldKey, d.FieldType)
	}
	seen := make(map[string]struct{}, len(opts.Choices))
	for _, c := range opts.Choices {
		if strings.TrimSpace(c) == "" {
			return models.NewValidationErrorf("field %s: options must not be empty", d.FieldKey)
		}
		if _, dup := seen[c]; dup {
			return models.NewValidationErrorf("field %s: duplicate option %q", d.FieldKey, c)
		}
		seen[c] = struct{}{}
	}
	if opts.Min != nil && opts.Max != nil && *opts.Min > *opts.Max {
		return models.NewValidationErrorf("field %s: min %v is greater than max %v", d.FieldKey, *opts.Min, *opts.Max)
	}
	if opts.MinLength != nil && *opts.MinLength < 0 || opts.MaxLength != nil && *opts.MaxLength < 0 {
		return models.NewValidationErrorf("field %s: length bounds must not be negative", d.FieldKey)
	}
	if opts.MinLength != nil && opts.MaxLength != nil && *opts.MinLength > *opts.MaxLength {
		return models.NewValidationErrorf("field %s: min length %d is greater than max length %d", d.FieldKey, *opts.MinLength, *opts.MaxLength)
	}
	if opts.Pattern != "" {
		if _, err := regexp.Compile(opts.Pattern); err != nil {
			return models.NewValidationErrorf("field %s: invalid pattern: %v", d.FieldKey, err)
		}
	}

	if d.DefaultValue != nil {
		optional := d
		optional.IsRequired = false
		if _, err := ValidateValue(optional, d.DefaultValue); err != nil {
			return models.NewValidationErrorf("field %s: invalid default value: %v", d.FieldKey, err)
		}
	}
	return nil
}

// ValidateValue checks raw against the definition and returns the typed value.
// A nil Value with a nil error means the input is empty and the field is optional.
func ValidateValue(d models.FieldDefinition, raw any) (models.Value, error) {
	if isEmpty(raw) {
		if d.IsRequired {
			return nil, models.NewValidationErrorf("%s is required", d.FieldKey)
		}
		return nil, nil
	}

	switch d.FieldType {
	case models.FieldText, models.FieldTextarea:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		if err := checkString(d, s); err != nil {
			return nil, err
		}
		return models.StringValue(s), nil

	case models.FieldURL, models.FieldEmail:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		tag := "url"
		if d.FieldType == models.FieldEmail {
			tag = "email"
		}
		if err := validate.Var(s, tag); err != nil {
			return nil, models.NewValidationErrorf("%s: %q is not a valid %s", d.FieldKey, s, d.FieldType)
		}
		if err := checkString(d, s); err != nil {
			return nil, err
		}
		return models.StringValue(s), nil

	case models.FieldNumber:
		n, err := asNumber(d, raw)
		if err != nil {
			return nil, err
		}
		if d.Options.Min != nil && n < *d.Options.Min {
			return nil, models.NewValidationErrorf("%s: %v is below minimum %v", d.FieldKey, n, *d.Options.Min)
		}
		if d.Options.Max != nil && n > *d.Options.Max {
			return nil, models.NewValidationErrorf("%s: %v is above maximum %v", d.FieldKey, n, *d.Options.Max)
		}
		return models.NumberValue(n), nil

	case models.FieldDate, models.FieldDateTime:
		return asDate(d, raw)

	case models.FieldSelect:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		if !d.Options.AllowCustom && !d.Options.HasChoice(s) {
			return nil, models.NewValidationErrorf("%s: %q is not an allowed option", d.FieldKey, s)
		}
		return models.StringValue(s), nil

	case models.FieldMultiSelect, models.FieldLabels, models.FieldMultiUser:
		items, err := asStringSet(d, raw)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			if d.IsRequired {
				return nil, models.NewValidationErrorf("%s is required", d.FieldKey)
			}
			return nil, nil
		}
		if checksChoices(d) {
			for _, it := range items {
				if !d.Options.HasChoice(it) {
					return nil, models.NewValidationErrorf("%s: %q is not an allowed option", d.FieldKey, it)
				}
			}
		}
		return models.ListValue(items), nil

	case models.FieldUser:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return models.UserValue(s), nil

	case models.FieldCheckbox:
		switch v := raw.(type) {
		case bool:
			return models.BoolValue(v), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, models.NewValidationErrorf("%s: expected true or false", d.FieldKey)
			}
			return models.BoolValue(b), nil
		}
		return nil, models.NewValidationErrorf("%s: expected true or false", d.FieldKey)

	case models.FieldEpicLink, models.FieldSprint:
		s, err := asReference(d, raw)
		if err != nil {
			return nil, err
		}
		return models.StringValue(s), nil
	}

	return nil, models.NewValidationErrorf("%s: unknown field type %q", d.FieldKey, d.FieldType)
}

// checksChoices reports whether list items must come from the enumerated options.
// Labels and multi-user fields without options are free-form.
func checksChoices(d models.FieldDefinition) bool {
	if d.Options.AllowCustom {
		return false
	}
	if d.FieldType == models.FieldMultiSelect {
		return true
	}
	return len(d.Options.Choices) > 0
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

func asString(d models.FieldDefinition, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", models.NewValidationErrorf("%s: expected a string", d.FieldKey)
	}
	return strings.TrimSpace(s), nil
}

func checkString(d models.FieldDefinition, s string) error {
	n := utf8.RuneCountInString(s)
	if d.Options.MinLength != nil && n < *d.Options.MinLength {
		return models.NewValidationErrorf("%s: must be at least %d characters", d.FieldKey, *d.Options.MinLength)
	}
	if d.Options.MaxLength != nil && n > *d.Options.MaxLength {
		return models.NewValidationErrorf("%s: must be at most %d characters", d.FieldKey, *d.Options.MaxLength)
	}
	if d.Options.Pattern != "" {
		re, err := regexp.Compile(d.Options.Pattern)
		if err != nil {
			return models.NewValidationErrorf("%s: invalid pattern: %v", d.FieldKey, err)
		}
		if !re.MatchString(s) {
			return models.NewValidationErrorf("%s: %q does not match pattern %s", d.FieldKey, s, d.Options.Pattern)
		}
	}
	return nil
}

func asNumber(d models.FieldDefinition, raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, models.NewValidationErrorf("%s: expected a number", d.FieldKey)
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, models.NewValidationErrorf("%s: %q is not a number", d.FieldKey, v)
		}
		n = f
	default:
		return 0, models.NewValidationErrorf("%s: expected a number", d.FieldKey)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, models.NewValidationErrorf("%s: expected a finite number", d.FieldKey)
	}
	return n, nil
}

func asDate(d models.FieldDefinition, raw any) (models.Value, error) {
	dateOnly := d.FieldType == models.FieldDate
	switch v := raw.(type) {
	case time.Time:
		if dateOnly {
			v = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		}
		return models.DateValue{Time: v, DateOnly: dateOnly}, nil
	case string:
		s := strings.TrimSpace(v)
		layout := time.RFC3339
		if dateOnly {
			layout = time.DateOnly
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, models.NewValidationErrorf("%s: %q is not a valid %s (expected %s)", d.FieldKey, s, d.FieldType, layout)
		}
		return models.DateValue{Time: t, DateOnly: dateOnly}, nil
	}
	return nil, models.NewValidationErrorf("%s: expected a %s string", d.FieldKey, d.FieldType)
}

func asStringSet(d models.FieldDefinition, raw any) ([]string, error) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, it := range v {
			s, ok := it.(string)
			if !ok {
				return nil, models.NewValidationErrorf("%s: expected a list of strings", d.FieldKey)
			}
			items = append(items, s)
		}
	default:
		return nil, models.NewValidationErrorf("%s: expected a list of strings", d.FieldKey)
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			return nil, models.NewValidationErrorf("%s: list entries must not be empty", d.FieldKey)
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out, nil
}

// asReference accepts string ids and integral JSON numbers.
func asReference(d models.FieldDefinition, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v == math.Trunc(v) && v > 0 {
			return strconv.FormatInt(int64(v), 10), nil
		}
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	}
	return "", models.NewValidationErrorf("%s: expected an identifier", d.FieldKey)
}

// describe is used in log lines.
func describe(v models.Value) string {
	if v == nil {
		return "<empty>"
	}
	return fmt.Sprintf("%s(%s)", v.Slot(), v.String())
}
