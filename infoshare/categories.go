package infoshare

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoCategories       = errors.New("at least one category is required")
	ErrTooManyCategories  = fmt.Errorf("at most %d categories are allowed", discordMaxSelectOptions)
	ErrBlankCategory      = errors.New("category names cannot be blank")
	ErrDuplicateCategory  = errors.New("duplicate category")
	ErrCategoryTooLong    = fmt.Errorf("category names are limited to %d characters", categoryMaxLength)
	ErrCategoryNotAllowed = errors.New("category is not in the configured category list")
)

// CategorySet is the fixed, ordered list of categories a submission can
// be filed under. It's built once at startup and never modified.
type CategorySet struct {
	names []string
	index map[string]struct{}
}

// NewCategorySet builds a CategorySet from the given names, trimming
// surrounding whitespace. Order is preserved.
func NewCategorySet(names []string) (*CategorySet, error) {
	if len(names) == 0 {
		return nil, ErrNoCategories
	}
	if len(names) > discordMaxSelectOptions {
		return nil, ErrTooManyCategories
	}
	c := &CategorySet{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	var errs []error
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
			errs = append(errs, ErrBlankCategory)
			continue
		case utf8.RuneCountInString(name) > categoryMaxLength:
			errs = append(errs, fmt.Errorf("%w: %q", ErrCategoryTooLong, name))
			continue
		}
		if _, exists := c.index[name]; exists {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateCategory, name))
			continue
		}
		c.index[name] = struct{}{}
		c.names = append(c.names, name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Contains reports whether name is one of the configured categories.
func (c *CategorySet) Contains(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[name]
	return ok
}

// Names returns the categories in configured order.
func (c *CategorySet) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

func (c *CategorySet) Len() int {
	return len(c.names)
}
