package image

import (
	"strconv"
	"strings"
)

// pageSelector separates the name from the page index in an identifier.
const pageSelector = ":page:"

// SplitIdentifier returns the name to look up and the page to open. A page
// that doesn't parse, or is negative, selects the first one.
func SplitIdentifier(identifier string) (string, int) {
	i := strings.Index(identifier, pageSelector)
	if i < 0 {
		return identifier, 0
	}

	page, err := strconv.Atoi(identifier[i+len(pageSelector):])
	if err != nil || page < 0 {
		page = 0
	}

	return identifier[:i], page
}

// BaseIdentifier strips the page selector, if any.
func BaseIdentifier(identifier string) string {
	name, _ := SplitIdentifier(identifier)
	return name
}
