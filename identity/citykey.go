package identity

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	multiDashRegex  = regexp.MustCompile(`-{2,}`)
)

// CityKey normalizes a user-supplied city name into the identifier used in
// URLs, listing ids and the in-flight guard: "  Navi Mumbai " -> "navi-mumbai".
func CityKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = multiSpaceRegex.ReplaceAllString(key, "-")
	key = multiDashRegex.ReplaceAllString(key, "-")
	return strings.Trim(key, "-")
}

// SeedKey is the lookup key into the city coordinate table: lower-case with
// hyphens and spaces removed, so "New-Delhi" and "new delhi" both map to "newdelhi".
func SeedKey(city string) string {
	key := strings.ToLower(strings.TrimSpace(city))
	key = strings.ReplaceAll(key, "-", "")
	return multiSpaceRegex.ReplaceAllString(key, "")
}

// DisplayName turns a city key back into something readable ("navi-mumbai" -> "navi mumbai").
func DisplayName(city string) string {
	return strings.ReplaceAll(city, "-", " ")
}
