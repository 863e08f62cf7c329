// Package taginput configures the tag-input widget of the tech stack field.
//
// The widget itself runs in the browser. This package only decides whether
// to enhance the field and with which options.
package taginput

import (
	"fmt"
	"strings"
)

// DefaultField is the id of the enhanced text field.
const DefaultField = "id_tech_stack"

// Key codes that confirm a tag.
const (
	KeyEnter = 13
	KeyComma = 188
	KeySpace = 32
)

// DefaultTagClass styles each rendered tag.
const DefaultTagClass = "inline-flex items-center px-2.5 py-0.5 rounded-full text-xs font-medium bg-blue-100 text-blue-800 mr-1 mb-1"

// Options are passed to the widget unchanged.
type Options struct {
	TagClass                 string `json:"tagClass,omitempty"`
	TrimValue                bool   `json:"trimValue"`
	MaxTags                  int    `json:"maxTags"`
	MaxChars                 int    `json:"maxChars"`
	ConfirmKeys              []int  `json:"confirmKeys"`
	CancelConfirmKeysOnEmpty bool   `json:"cancelConfirmKeysOnEmpty"`
}

// DefaultOptions returns the options used by the project form.
func DefaultOptions() Options {
	return Options{
		TagClass:    DefaultTagClass,
		TrimValue:   true,
		MaxTags:     10,
		MaxChars:    20,
		ConfirmKeys: []int{KeyEnter, KeyComma, KeySpace},
	}
}

// Validate checks that the limits are usable.
func (o Options) Validate() error {
	if o.MaxTags < 1 {
		return fmt.Errorf("taginput: maxTags must be positive, got %d", o.MaxTags)
	}
	if o.MaxChars < 1 {
		return fmt.Errorf("taginput: maxChars must be positive, got %d", o.MaxChars)
	}
	if len(o.ConfirmKeys) == 0 {
		return fmt.Errorf("taginput: at least one confirm key is required")
	}
	return nil
}

// Page is the page hosting the field.
type Page interface {
	// HasElement reports whether an element with the id exists.
	HasElement(id string) bool

	// TagsInput enhances the field with the widget.
	TagsInput(field string, opts Options, initial []string)
}

// Attach enhances field on page if it exists. value is the field's
// current comma-separated content. It reports whether the widget was
// attached.
func Attach(page Page, field, value string, opts Options) bool {
	if !page.HasElement(field) {
		return false
	}
	page.TagsInput(field, opts, Split(value, opts))
	return true
}

// Split parses a comma-separated value into tags the way the widget would
// accept them: trimmed when TrimValue is set, empty and over-long tags
// dropped, duplicates removed and at most MaxTags kept.
func Split(value string, opts Options) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, tag := range strings.Split(value, ",") {
		if opts.TrimValue {
			tag = strings.TrimSpace(tag)
		}
		if tag == "" || seen[tag] {
			continue
		}
		if opts.MaxChars > 0 && len([]rune(tag)) > opts.MaxChars {
			continue
		}
		if opts.MaxTags > 0 && len(tags) == opts.MaxTags {
			break
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
