package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Property readers return the zero value when the property is absent or of
// an unexpected type.

// PlainText concatenates the plain text of a rich text array.
func PlainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
		if r.PlainText == "" && r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// Text reads a title or rich_text property.
func Text(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.TitleProperty:
		return PlainText(p.Title)
	case *notionapi.RichTextProperty:
		return PlainText(p.RichText)
	case notionapi.TitleProperty:
		return PlainText(p.Title)
	case notionapi.RichTextProperty:
		return PlainText(p.RichText)
	}
	return ""
}

// URL reads a url property.
func URL(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.URLProperty:
		return strings.TrimSpace(p.URL)
	case notionapi.URLProperty:
		return strings.TrimSpace(p.URL)
	}
	return ""
}

// Number reads a number property. ok is false when the property is absent.
func Number(props notionapi.Properties, name string) (float64, bool) {
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		return p.Number, true
	case notionapi.NumberProperty:
		return p.Number, true
	}
	return 0, false
}

// Checkbox reads a checkbox property.
func Checkbox(props notionapi.Properties, name string) bool {
	switch p := props[name].(type) {
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case notionapi.CheckboxProperty:
		return p.Checkbox
	}
	return false
}

// Select reads a select or status property.
func Select(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case notionapi.StatusProperty:
		return p.Status.Name
	}
	return ""
}

// MultiSelect reads the option names of a multi_select property.
func MultiSelect(props notionapi.Properties, name string) []string {
	var opts []notionapi.Option
	switch p := props[name].(type) {
	case *notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	}
	if len(opts) == 0 {
		return nil
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Name
	}
	return out
}

// DateStart reads the start of a date property.
func DateStart(props notionapi.Properties, name string) *time.Time {
	var d *notionapi.DateObject
	switch p := props[name].(type) {
	case *notionapi.DateProperty:
		d = p.Date
	case notionapi.DateProperty:
		d = p.Date
	}
	if d == nil || d.Start == nil {
		return nil
	}
	t := time.Time(*d.Start)
	return &t
}

// Property builders for page updates.

// RichTextValue builds a rich_text property holding s.
func RichTextValue(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

// MaxTextContent is the Notion limit on a single rich text segment.
const MaxTextContent = 2000

// LongTextValue builds a rich_text property, splitting s into segments of
// at most MaxTextContent runes.
func LongTextValue(s string) notionapi.RichTextProperty {
	p := notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: []notionapi.RichText{}}
	runes := []rune(s)
	for len(runes) > 0 {
		n := min(len(runes), MaxTextContent)
		p.RichText = append(p.RichText, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	return p
}

// NumberValue builds a number property.
func NumberValue(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: v}
}

// CheckboxValue builds a checkbox property.
func CheckboxValue(v bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: v}
}

// SelectValue builds a select property.
func SelectValue(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// MultiSelectValue builds a multi_select property. Commas are not allowed
// in option names and are replaced with semicolons.
func MultiSelectValue(names []string) notionapi.MultiSelectProperty {
	opts := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, notionapi.Option{Name: strings.ReplaceAll(n, ",", ";")})
	}
	return notionapi.MultiSelectProperty{Type: notionapi.PropertyTypeMultiSelect, MultiSelect: opts}
}

// DateValue builds a date property starting at t.
func DateValue(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}
