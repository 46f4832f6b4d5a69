package resolver

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"bankflow/recipes"
)

const maxTextIdentity = 100

// Classes that only describe layout or come from CSS-in-JS compilers change
// between deploys; they never identify an element.
var classDenyPrefixes = []string{
	"css-", "sc-", "jsx-", "tw-", "mui-", "makestyles", "chakra-",
	"col-", "row-", "mt-", "mb-", "ml-", "mr-", "px-", "py-", "pt-", "pb-",
	"w-", "h-", "d-", "m-", "p-",
}

var classDenySubstrings = []string{
	"flex", "grid", "container", "wrapper", "inner", "outer",
	"justify", "items-", "gap-", "text-", "bg-", "border",
	"hidden", "visible", "active", "hover", "focus",
}

var (
	hexRunRe   = regexp.MustCompile(`[0-9a-fA-F]{8,}`)
	uuidRe     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	digitRunRe = regexp.MustCompile(`\d{6,}`)
)

// Describe builds the replay descriptor for a captured element, walking the
// strategy ladder from most to least stable. Coordinates are carried on the
// step itself, not here; Describe only decides the selector strategy.
func Describe(el CapturedElement) recipes.TargetDescriptor {
	tag := strings.ToLower(el.Tag)

	if isFormControl(el) {
		if d, ok := describeFormControl(el, tag); ok {
			return d
		}
	}
	if isClickable(el) {
		if d, ok := describeClickable(el, tag); ok {
			return d
		}
	}
	if sel := structuralPath(el); sel != "" {
		return recipes.TargetDescriptor{
			Strategy: recipes.StrategyStructural,
			Selector: sel,
			Tag:      tag,
		}
	}
	return recipes.TargetDescriptor{Strategy: recipes.StrategyNone, Tag: tag}
}

// FieldLabel derives the best operator-facing label for a captured control.
func FieldLabel(el CapturedElement) string {
	for _, c := range []string{el.LabelText, el.Placeholder, el.AriaLabel, el.Name, el.Text} {
		if s := strings.TrimSpace(c); s != "" {
			return truncate(s, maxTextIdentity)
		}
	}
	return ""
}

// Sensitive reports whether a control looks password-like. This drives
// masking only; the value is still persisted so replay stays deterministic.
func Sensitive(el CapturedElement) bool {
	if strings.EqualFold(el.Type, "password") {
		return true
	}
	for _, s := range []string{el.Name, el.Placeholder, el.AriaLabel, el.LabelText} {
		l := strings.ToLower(s)
		if strings.Contains(l, "password") || strings.Contains(l, "pin") {
			return true
		}
	}
	return false
}

func isFormControl(el CapturedElement) bool {
	switch strings.ToLower(el.Tag) {
	case "input", "textarea", "select":
		return true
	}
	return strings.EqualFold(el.Role, "textbox") || strings.EqualFold(el.Role, "combobox")
}

func isClickable(el CapturedElement) bool {
	switch strings.ToLower(el.Tag) {
	case "button", "a":
		return true
	}
	return strings.EqualFold(el.Role, "button") || strings.EqualFold(el.Role, "link")
}

func describeFormControl(el CapturedElement, tag string) (recipes.TargetDescriptor, bool) {
	// A name attribute is only trustworthy when nothing else on the page
	// shares it.
	if el.Name != "" && el.NameMatches == 1 {
		return recipes.TargetDescriptor{
			Strategy: recipes.StrategySemantic,
			Selector: fmt.Sprintf(`%s[name=%q]`, tag, el.Name),
			Tag:      tag,
		}, true
	}
	if el.Placeholder != "" {
		return recipes.TargetDescriptor{
			Strategy: recipes.StrategySemantic,
			Selector: fmt.Sprintf(`%s[placeholder=%q]`, tag, el.Placeholder),
			Tag:      tag,
		}, true
	}
	if el.AriaLabel != "" {
		return recipes.TargetDescriptor{
			Strategy: recipes.StrategySemantic,
			Selector: fmt.Sprintf(`%s[aria-label=%q]`, tag, el.AriaLabel),
			Tag:      tag,
		}, true
	}
	if s := strings.TrimSpace(el.LabelText); s != "" {
		return recipes.TargetDescriptor{
			Strategy: recipes.StrategySemantic,
			Label:    truncate(s, maxTextIdentity),
			Tag:      tag,
		}, true
	}
	return recipes.TargetDescriptor{}, false
}

func describeClickable(el CapturedElement, tag string) (recipes.TargetDescriptor, bool) {
	text := strings.TrimSpace(el.Text)
	if text == "" {
		return recipes.TargetDescriptor{}, false
	}
	hint := MeaningfulClass(append([]string{el.TextClass}, el.Classes...))
	return recipes.TargetDescriptor{
		Strategy:  recipes.StrategyText,
		Text:      truncate(text, maxTextIdentity),
		ClassHint: hint,
		Tag:       tag,
	}, true
}

// MeaningfulClass picks the first class that survives the layout/utility
// denylist, or "" when none does.
func MeaningfulClass(classes []string) string {
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c == "" || len(c) < 3 {
			continue
		}
		if classIsNoise(c) {
			continue
		}
		return c
	}
	return ""
}

func classIsNoise(c string) bool {
	l := strings.ToLower(c)
	for _, p := range classDenyPrefixes {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	for _, s := range classDenySubstrings {
		if strings.Contains(l, s) {
			return true
		}
	}
	// Compiler-suffixed classes (foo__x-3f9a2c) are as unstable as css- ones.
	return hexRunRe.MatchString(l)
}

// DynamicID reports whether an id looks machine-generated and therefore
// unstable across page loads.
func DynamicID(id string) bool {
	if id == "" {
		return true
	}
	return uuidRe.MatchString(id) || hexRunRe.MatchString(id) || digitRunRe.MatchString(id)
}

// structuralPath builds a short ancestor-path selector: up to three ancestor
// levels of tag plus a stable id or class, ending at the target element.
func structuralPath(el CapturedElement) string {
	var parts []string
	n := len(el.Ancestors)
	if n > 3 {
		n = 3
	}
	// Ancestors arrive nearest-first; the selector reads outermost-first.
	for i := n - 1; i >= 0; i-- {
		parts = append(parts, levelSelector(el.Ancestors[i].Tag, el.Ancestors[i].ID, el.Ancestors[i].Classes))
	}
	self := levelSelector(el.Tag, el.ID, el.Classes)
	if self == "" {
		return ""
	}
	parts = append(parts, self)
	// A bare-tag-only path matches far too much to be worth storing.
	anyAnchor := false
	for _, p := range parts {
		if strings.ContainsAny(p, "#.") {
			anyAnchor = true
			break
		}
	}
	if !anyAnchor {
		return ""
	}
	return strings.Join(parts, " > ")
}

func levelSelector(tag, id string, classes []string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	if id != "" && !DynamicID(id) {
		return tag + "#" + id
	}
	if c := MeaningfulClass(classes); c != "" {
		return tag + "." + c
	}
	return tag
}

// truncate caps s at n runes. The replay script caps candidate text the same
// way (code points, not bytes), so the two sides compare equal lengths.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
