package fields

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

const requiredMessage = "is required"

// asNumber normalizes the numeric representations a JSON payload can carry.
func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ruleNumber extracts a numeric rule parameter.
func ruleNumber(r Rule) (float64, bool) {
	return asNumber(r.Value)
}

// ruleString extracts a string rule parameter.
func ruleString(r Rule) (string, bool) {
	s, ok := r.Value.(string)
	return s, ok
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// stringList converts []interface{} or []string payload values.
func stringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// allowedValues reads the select/multiselect choice set from field options.
// Options entries may be plain strings or {label, value} maps.
func allowedValues(opts Options) map[string]bool {
	allowed := make(map[string]bool)
	raw, ok := opts["options"].([]interface{})
	if !ok {
		return allowed
	}
	for _, entry := range raw {
		switch e := entry.(type) {
		case string:
			allowed[e] = true
		case map[string]interface{}:
			if v, ok := e["value"].(string); ok {
				allowed[v] = true
			}
		}
	}
	return allowed
}

// optionDefault returns the declared default value, if any.
func optionDefault(opts Options) (interface{}, bool) {
	v, ok := opts["default"]
	return v, ok
}

// --- text, textarea, rich-text ---

// textHandler covers the three free-text kinds. Format rules only apply when
// explicitly declared; an empty string is a valid value for non-required
// fields.
type textHandler struct{}

func (h *textHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}

	var errs []string
	for _, rule := range rules {
		switch rule.Type {
		case "minLength":
			if min, ok := ruleNumber(rule); ok && utf8.RuneCountInString(s) < int(min) {
				errs = append(errs, rule.message(fmt.Sprintf("must be at least %d characters", int(min))))
			}
		case "maxLength":
			if max, ok := ruleNumber(rule); ok && utf8.RuneCountInString(s) > int(max) {
				errs = append(errs, rule.message(fmt.Sprintf("must be at most %d characters", int(max))))
			}
		case "pattern":
			pattern, ok := ruleString(rule)
			if !ok {
				errs = append(errs, "invalid pattern rule")
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				// a broken pattern is a rule error, never a crash
				errs = append(errs, fmt.Sprintf("invalid pattern rule: %v", err))
				continue
			}
			if !re.MatchString(s) {
				errs = append(errs, rule.message("does not match the required pattern"))
			}
		}
	}
	return errs
}

func (h *textHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return strings.TrimSpace(s), nil
}

func (h *textHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *textHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- number ---

type numberHandler struct{}

func (h *numberHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	n, ok := asNumber(value)
	if !ok {
		return []string{"must be a number"}
	}

	var errs []string
	for _, rule := range rules {
		switch rule.Type {
		case "min":
			if min, ok := ruleNumber(rule); ok && n < min {
				errs = append(errs, rule.message(fmt.Sprintf("must be at least %v", min)))
			}
		case "max":
			if max, ok := ruleNumber(rule); ok && n > max {
				errs = append(errs, rule.message(fmt.Sprintf("must be at most %v", max)))
			}
		case "integer":
			if n != float64(int64(n)) {
				errs = append(errs, rule.message("must be an integer"))
			}
		}
	}
	return errs
}

func (h *numberHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	n, ok := asNumber(value)
	if !ok {
		return nil, fmt.Errorf("expected number, got %T", value)
	}
	return n, nil
}

func (h *numberHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	n, ok := asNumber(raw)
	if !ok {
		return nil, fmt.Errorf("expected number, got %T", raw)
	}
	return n, nil
}

func (h *numberHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- boolean ---

// booleanHandler treats the empty string as "no value", never as false.
type booleanHandler struct{}

func (h *booleanHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil || value == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if _, ok := value.(bool); !ok {
		return []string{"must be a boolean"}
	}
	return nil
}

func (h *booleanHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil || value == "" {
		return nil, nil
	}
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", value)
	}
	return b, nil
}

func (h *booleanHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	}
	return b, nil
}

func (h *booleanHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- date, datetime ---

// dateHandler treats the empty string as "no value", matching booleanHandler.
type dateHandler struct{}

func (h *dateHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil || value == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be an ISO-8601 date string"}
	}
	t, err := parseDate(s)
	if err != nil {
		return []string{"must be an ISO-8601 date string"}
	}

	var errs []string
	for _, rule := range rules {
		switch rule.Type {
		case "minDate":
			bound, ok := ruleString(rule)
			if !ok {
				errs = append(errs, "invalid minDate rule")
				continue
			}
			min, err := parseDate(bound)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid minDate rule: %v", err))
				continue
			}
			if t.Before(min) {
				errs = append(errs, rule.message(fmt.Sprintf("must not be before %s", bound)))
			}
		case "maxDate":
			bound, ok := ruleString(rule)
			if !ok {
				errs = append(errs, "invalid maxDate rule")
				continue
			}
			max, err := parseDate(bound)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid maxDate rule: %v", err))
				continue
			}
			if t.After(max) {
				errs = append(errs, rule.message(fmt.Sprintf("must not be after %s", bound)))
			}
		}
	}
	return errs
}

func (h *dateHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil || value == "" {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", value)
	}
	return strings.TrimSpace(s), nil
}

func (h *dateHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", raw)
	}
	return s, nil
}

func (h *dateHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- slug ---

type slugFieldHandler struct{}

func (h *slugFieldHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if !slugPattern.MatchString(s) {
		return []string{"must contain only lowercase letters, digits and hyphens"}
	}
	return nil
}

func (h *slugFieldHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

func (h *slugFieldHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *slugFieldHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- email ---

// emailHandler always checks the address shape for non-empty values, whether
// or not a rule is declared.
type emailHandler struct{}

func (h *emailHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if !emailPattern.MatchString(s) {
		return []string{"must be a valid email address"}
	}
	return nil
}

func (h *emailHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

func (h *emailHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *emailHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- url ---

// urlHandler always checks that non-empty values parse as absolute URLs.
type urlHandler struct{}

func (h *urlHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return []string{"must be an absolute URL"}
	}
	return nil
}

func (h *urlHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return strings.TrimSpace(s), nil
}

func (h *urlHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *urlHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- select ---

type selectHandler struct{}

func (h *selectHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if !allowedValues(opts)[s] {
		return []string{fmt.Sprintf("%q is not an allowed value", s)}
	}
	return nil
}

func (h *selectHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

func (h *selectHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *selectHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- multiselect ---

type multiselectHandler struct{}

func (h *multiselectHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	list, ok := stringList(value)
	if !ok {
		return []string{"must be an array of strings"}
	}
	if len(list) == 0 {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	allowed := allowedValues(opts)
	var errs []string
	for _, item := range list {
		if !allowed[item] {
			errs = append(errs, fmt.Sprintf("%q is not an allowed value", item))
		}
	}
	return errs
}

func (h *multiselectHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := stringList(value)
	if !ok {
		return nil, fmt.Errorf("expected array of strings, got %T", value)
	}
	out := make([]interface{}, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out, nil
}

func (h *multiselectHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if _, ok := stringList(raw); !ok {
		return nil, fmt.Errorf("expected array of strings, got %T", raw)
	}
	return raw, nil
}

func (h *multiselectHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return []interface{}{}
}

// --- json ---

// jsonHandler accepts any JSON value. Deserializing a string that fails to
// parse yields nil rather than an error.
type jsonHandler struct{}

func (h *jsonHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil && required {
		return []string{requiredMessage}
	}
	return nil
}

func (h *jsonHandler) Serialize(value interface{}) (interface{}, error) {
	return value, nil
}

func (h *jsonHandler) Deserialize(raw interface{}) (interface{}, error) {
	if s, ok := raw.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, nil
		}
		return parsed, nil
	}
	return raw, nil
}

func (h *jsonHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- media ---

// mediaHandler validates reference ids against the configured multiplicity.
// The ids themselves are opaque; resolution happens in the media store.
type mediaHandler struct{}

func (h *mediaHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	multiple := opts.Bool("multiple")
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if multiple {
		list, ok := stringList(value)
		if !ok {
			return []string{"must be an array of media ids"}
		}
		if len(list) == 0 && required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a media id"}
	}
	if s == "" && required {
		return []string{requiredMessage}
	}
	return nil
}

func (h *mediaHandler) Serialize(value interface{}) (interface{}, error) {
	return value, nil
}

func (h *mediaHandler) Deserialize(raw interface{}) (interface{}, error) {
	return raw, nil
}

func (h *mediaHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	if opts.Bool("multiple") {
		return []interface{}{}
	}
	return nil
}

// --- relation ---

// relationHandler checks shape only; endpoint existence is enforced by the
// content storage service at commit time.
type relationHandler struct{}

func validateRelationEntry(v interface{}) string {
	entry, ok := v.(map[string]interface{})
	if !ok {
		return "must be a relation object"
	}
	id, ok := entry["id"].(string)
	if !ok || id == "" {
		return "relation object must carry an id"
	}
	return ""
}

func (h *relationHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if list, ok := value.([]interface{}); ok {
		if len(list) == 0 && required {
			return []string{requiredMessage}
		}
		var errs []string
		for _, entry := range list {
			if msg := validateRelationEntry(entry); msg != "" {
				errs = append(errs, msg)
			}
		}
		return errs
	}
	if msg := validateRelationEntry(value); msg != "" {
		return []string{msg}
	}
	return nil
}

func (h *relationHandler) Serialize(value interface{}) (interface{}, error) {
	return value, nil
}

func (h *relationHandler) Deserialize(raw interface{}) (interface{}, error) {
	return raw, nil
}

func (h *relationHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- color ---

type colorHandler struct{}

func (h *colorHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	if !colorPattern.MatchString(s) {
		return []string{"must be a #RRGGBB color"}
	}
	return nil
}

func (h *colorHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	if s == "" {
		return "", nil
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(s, "#")), nil
}

func (h *colorHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *colorHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}

// --- location ---

type locationHandler struct{}

func (h *locationHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	loc, ok := value.(map[string]interface{})
	if !ok {
		return []string{"must be a {lat, lng} object"}
	}
	lat, latOK := asNumber(loc["lat"])
	lng, lngOK := asNumber(loc["lng"])
	if !latOK || !lngOK {
		return []string{"must be a {lat, lng} object"}
	}
	var errs []string
	if lat < -90 || lat > 90 {
		errs = append(errs, "lat must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		errs = append(errs, "lng must be between -180 and 180")
	}
	return errs
}

func (h *locationHandler) Serialize(value interface{}) (interface{}, error) {
	return value, nil
}

func (h *locationHandler) Deserialize(raw interface{}) (interface{}, error) {
	return raw, nil
}

func (h *locationHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return nil
}

// --- reference ---

type referenceHandler struct{}

func (h *referenceHandler) Validate(value interface{}, required bool, rules []Rule, opts Options) []string {
	if value == nil {
		if required {
			return []string{requiredMessage}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return []string{"must be a string"}
	}
	if s == "" && required {
		return []string{requiredMessage}
	}
	return nil
}

func (h *referenceHandler) Serialize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return strings.TrimSpace(s), nil
}

func (h *referenceHandler) Deserialize(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

func (h *referenceHandler) Default(opts Options) interface{} {
	if d, ok := optionDefault(opts); ok {
		return d
	}
	return ""
}
