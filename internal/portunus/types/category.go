package types

import (
	"errors"
	"strings"
)

var ErrInvalidCategory = errors.New("invalid category")

// Category is the visitor class a request or user belongs to.
type Category string

const (
	CategoryFamily   Category = "family"
	CategoryFriends  Category = "friends"
	CategoryServants Category = "servants"
	CategoryDelivery Category = "delivery"
	CategoryGuest    Category = "guest"
	CategoryUnknown  Category = "unknown"
)

var categories = []Category{
	CategoryFamily, CategoryFriends, CategoryServants,
	CategoryDelivery, CategoryGuest, CategoryUnknown,
}

// Categories lists every category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory accepts any case and the singular forms used by keypads
// ("friend", "servant"). An empty string is CategoryUnknown.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return CategoryUnknown, nil
	case "friend":
		return CategoryFriends, nil
	case "servant":
		return CategoryServants, nil
	}
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// HasGroupCode reports whether the category shares a long-lived keypad code.
func (c Category) HasGroupCode() bool {
	return c == CategoryFamily || c == CategoryFriends || c == CategoryServants
}
