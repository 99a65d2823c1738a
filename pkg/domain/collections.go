// Package domain defines the content model shared by the store backends and
// the HTTP layer: collections, records, schemas and the aggregate document.
package domain

import "strings"

// Collection names a top-level array in the content document.
type Collection string

const (
	CollectionProducts    Collection = "products"
	CollectionServices    Collection = "services"
	CollectionNews        Collection = "news"
	CollectionExperiences Collection = "experiences"
	CollectionTeam        Collection = "team"
	CollectionNavigation  Collection = "navigation"
	CollectionImages      Collection = "images"
	CollectionContacts    Collection = "contacts"
	CollectionUsers       Collection = "users"
)

// Collections lists every collection in document order.
var Collections = []Collection{
	CollectionProducts,
	CollectionServices,
	CollectionNews,
	CollectionExperiences,
	CollectionTeam,
	CollectionNavigation,
	CollectionImages,
	CollectionContacts,
	CollectionUsers,
}

var singulars = map[Collection]string{
	CollectionProducts:    "Product",
	CollectionServices:    "Service",
	CollectionNews:        "News",
	CollectionExperiences: "Experience",
	CollectionTeam:        "Team member",
	CollectionNavigation:  "Navigation item",
	CollectionImages:      "Image",
	CollectionContacts:    "Contact",
	CollectionUsers:       "User",
}

// ParseCollection resolves a collection name case-insensitively.
func ParseCollection(name string) (Collection, bool) {
	c := Collection(strings.ToLower(strings.TrimSpace(name)))
	_, ok := singulars[c]
	return c, ok
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	_, ok := singulars[c]
	return ok
}

// Singular returns the human label used in messages, e.g. "Product".
func (c Collection) Singular() string {
	if s, ok := singulars[c]; ok {
		return s
	}
	return string(c)
}

func (c Collection) String() string { return string(c) }
