package domain

import (
	"fmt"
	"strings"
)

// Category identifies one denylist. The numeric value is the short hex code
// operators know the lists by (0x0 bio ... 0x7 tld); 0x2 is unassigned.
type Category uint8

const (
	CategoryBio     Category = 0x0
	CategoryString  Category = 0x1
	CategoryChannel Category = 0x3
	CategoryDomain  Category = 0x4
	CategoryFile    Category = 0x5
	CategoryMHash   Category = 0x6
	CategoryTLD     Category = 0x7
)

var categoryNames = map[Category]string{
	CategoryBio:     "bio",
	CategoryString:  "string",
	CategoryChannel: "channel",
	CategoryDomain:  "domain",
	CategoryFile:    "file",
	CategoryMHash:   "mhash",
	CategoryTLD:     "tld",
}

// Categories returns every category in code order.
func Categories() []Category {
	return []Category{
		CategoryBio, CategoryString, CategoryChannel, CategoryDomain,
		CategoryFile, CategoryMHash, CategoryTLD,
	}
}

// ParseCategory accepts a category name ("domain") or its hex code ("0x4").
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if s == name || s == c.Code() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Code is the hex short hand, e.g. "0x4".
func (c Category) Code() string {
	return fmt.Sprintf("0x%x", uint8(c))
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// Binary reports whether entries are derived from a payload (file or image bytes)
// rather than from operator supplied tokens.
func (c Category) Binary() bool {
	return c == CategoryFile || c == CategoryMHash
}
