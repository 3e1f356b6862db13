package diff

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Style controls how a Result is rendered. The format strings receive the
// label, the old value and the new value as positional arguments 1, 2 and 3.
type Style struct {
	Locale string
	// Empty stands in for an absent value.
	Empty string
	// Separator joins rendered entries.
	Separator string
	// ListSeparator joins collection elements.
	ListSeparator string
	// Nested joins a parent label and a child label.
	Nested   string
	Modified string
	Added    string
	Removed  string
	// CollectionLabel is followed by CollectionAdded and CollectionRemoved
	// for each non-empty side of a collection change.
	CollectionLabel   string
	CollectionAdded   string
	CollectionRemoved string
}

// Chinese renders changes the way the business audit screens expect them.
var Chinese = Style{
	Locale:            "zh",
	Empty:             "空",
	Separator:         "；",
	ListSeparator:     "，",
	Nested:            "%s的%s",
	Modified:          "【%[1]s】从【%[2]s】修改为【%[3]s】",
	Added:             "添加了【%[1]s】：【%[3]s】",
	Removed:           "删除了【%[1]s】：【%[2]s】",
	CollectionLabel:   "【%s】",
	CollectionAdded:   "添加了【%s】",
	CollectionRemoved: "删除了【%s】",
}

// English is the default style.
var English = Style{
	Locale:            "en",
	Empty:             "empty",
	Separator:         "; ",
	ListSeparator:     ", ",
	Nested:            "%s %s",
	Modified:          "[%[1]s] changed from [%[2]s] to [%[3]s]",
	Added:             "added [%[1]s]: [%[3]s]",
	Removed:           "removed [%[1]s]: [%[2]s]",
	CollectionLabel:   "[%s]",
	CollectionAdded:   " added [%s]",
	CollectionRemoved: " removed [%s]",
}

var (
	styles  = []Style{English, Chinese}
	matcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})
)

// StyleFor returns the built-in style closest to locale ("zh-CN", "en_US",
// "zh"). Unknown or malformed locales fall back to English.
func StyleFor(locale string) Style {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No || idx < 0 || idx >= len(styles) {
		return English
	}
	return styles[idx]
}

// NestedLabel joins a parent and child label.
func (s Style) NestedLabel(parent, child string) string {
	if parent == "" {
		return child
	}
	return fmt.Sprintf(s.Nested, parent, child)
}

// Render renders every entry of r joined by the style separator.
func (s Style) Render(r Result) string {
	parts := make([]string, len(r))
	for i, e := range r {
		parts[i] = s.RenderEntry(e)
	}
	return strings.Join(parts, s.Separator)
}

// RenderEntry renders a single change.
func (s Style) RenderEntry(e Entry) string {
	if e.Collection {
		var b strings.Builder
		fmt.Fprintf(&b, s.CollectionLabel, e.Label)
		if len(e.Added) > 0 {
			fmt.Fprintf(&b, s.CollectionAdded, strings.Join(e.Added, s.ListSeparator))
		}
		if len(e.Removed) > 0 {
			fmt.Fprintf(&b, s.CollectionRemoved, strings.Join(e.Removed, s.ListSeparator))
		}
		return b.String()
	}

	switch e.Kind {
	case Added:
		return fmt.Sprintf(s.Added, e.Label, e.Old, e.New)
	case Removed:
		return fmt.Sprintf(s.Removed, e.Label, e.Old, e.New)
	default:
		return fmt.Sprintf(s.Modified, e.Label, e.Old, e.New)
	}
}

// Render renders r with the engine's style.
func (e *Engine) Render(r Result) string {
	return e.style.Render(r)
}
