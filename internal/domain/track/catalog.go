// Package track holds the static track catalog: the official and community
// track lists the dashboard sweeps when building per-user statistics. The
// catalog is configuration data, not logic - it ships with an embedded
// default and can be replaced wholesale from a JSON file, since track IDs
// have historically drifted between copies of the frontend.
package track

import (
	"encoding/json"
	"fmt"
	"os"

	_ "embed"
)

// Kind separates the two disjoint catalogs.
type Kind string

const (
	// KindOfficial - tracks shipped with the game.
	KindOfficial Kind = "official"
	// KindCommunity - curated community tracks.
	KindCommunity Kind = "community"
)

// Descriptor is one catalog entry: a display name and the opaque track
// identifier used by the leaderboard service (a 64-character hex string).
type Descriptor struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Validate checks the descriptor's shape.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("track %q: empty name", d.ID)
	}
	if len(d.ID) != 64 {
		return fmt.Errorf("track %q: id must be 64 hex characters, got %d", d.Name, len(d.ID))
	}
	for _, c := range d.ID {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("track %q: id contains non-hex character %q", d.Name, c)
		}
	}
	return nil
}

// Catalog is the full set of known tracks, kept in fixed order. Iteration
// order is significant: aggregation tie-breaks follow it.
type Catalog struct {
	Official  []Descriptor `json:"official"`
	Community []Descriptor `json:"community"`
}

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return parse(defaultCatalogJSON)
}

// MustDefault returns the embedded catalog, panicking if the embedded data
// is malformed. The embed is fixed at compile time, so a failure here is a
// build defect, not a runtime condition.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a catalog from a JSON file, replacing the default entirely.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return parse(data)
}

// Load returns the catalog from path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every descriptor and rejects duplicate IDs across both
// catalogs.
func (c *Catalog) Validate() error {
	seen := make(map[string]string, len(c.Official)+len(c.Community))
	for _, d := range c.All() {
		if err := d.Validate(); err != nil {
			return err
		}
		if prev, dup := seen[d.ID]; dup {
			return fmt.Errorf("track %q: id already used by %q", d.Name, prev)
		}
		seen[d.ID] = d.Name
	}
	return nil
}

// All returns both catalogs in fixed order, official first.
func (c *Catalog) All() []Descriptor {
	all := make([]Descriptor, 0, len(c.Official)+len(c.Community))
	all = append(all, c.Official...)
	all = append(all, c.Community...)
	return all
}

// ByKind returns the requested catalog slice, or both for an empty kind.
func (c *Catalog) ByKind(kind Kind) []Descriptor {
	switch kind {
	case KindOfficial:
		return c.Official
	case KindCommunity:
		return c.Community
	default:
		return c.All()
	}
}

// Find looks a track up by ID in either catalog.
func (c *Catalog) Find(id string) (Descriptor, Kind, bool) {
	for _, d := range c.Official {
		if d.ID == id {
			return d, KindOfficial, true
		}
	}
	for _, d := range c.Community {
		if d.ID == id {
			return d, KindCommunity, true
		}
	}
	return Descriptor{}, "", false
}

// KindOf returns which catalog a track ID belongs to.
func (c *Catalog) KindOf(id string) (Kind, bool) {
	_, kind, ok := c.Find(id)
	return kind, ok
}
