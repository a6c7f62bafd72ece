package utils

import "github.com/gosimple/slug"

// Slugify makes a lowercase ASCII URL slug, transliterating accented and
// non-Latin letters.
func Slugify(s string) string {
	return slug.Make(s)
}
