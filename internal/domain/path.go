package domain

import (
	"errors"
	"sort"
	"strings"
)

// Errors
var (
	ErrPathNotFound     = errors.New("path not found in facility")
	ErrLocationNotFound = errors.New("location not found")
	ErrOffPath          = errors.New("location has no path projection")
)

// Direction is the travel direction along a pick path
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// IsValid reports whether the direction is a known value
func (d Direction) IsValid() bool {
	return d == DirectionForward || d == DirectionReverse
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == DirectionForward {
		return DirectionReverse
	}
	return DirectionForward
}

// PathSegment is one straight run of a pick path. Segments are ordered and
// their endpoints give every projected location a scalar distance along the
// whole path, in centimeters.
type PathSegment struct {
	SegmentOrder int `bson:"segmentOrder" json:"segmentOrder"`
	StartCm      int `bson:"startCm" json:"startCm"`
	EndCm        int `bson:"endCm" json:"endCm"`
}

// Path is an ordered sequence of segments through the facility
type Path struct {
	PathID   string        `bson:"pathId" json:"pathId"`
	Segments []PathSegment `bson:"segments" json:"segments"`
}

// LengthCm returns the total path length in centimeters
func (p *Path) LengthCm() int {
	total := 0
	for _, s := range p.Segments {
		total += s.EndCm - s.StartCm
	}
	return total
}

// ContainsDistance reports whether a distance falls on one of the path's segments
func (p *Path) ContainsDistance(cm int) bool {
	for _, s := range p.Segments {
		if cm >= s.StartCm && cm <= s.EndCm {
			return true
		}
	}
	return false
}

// LightBinding identifies the LED position controller channel and index
// wired to a location
type LightBinding struct {
	Channel int `bson:"channel" json:"channel"`
	Index   int `bson:"index" json:"index"`
}

// Location is one addressable slot in the facility hierarchy
// (aisle, bay, tier, slot). A location may carry an alias name, a
// distance-along-path projection, a position tape identifier, and a
// lightable-device binding; all are optional.
type Location struct {
	LocationID     string        `bson:"locationId" json:"locationId"`
	Alias          string        `bson:"alias,omitempty" json:"alias,omitempty"`
	Aisle          string        `bson:"aisle" json:"aisle"`
	Bay            string        `bson:"bay" json:"bay"`
	Tier           string        `bson:"tier" json:"tier"`
	Slot           string        `bson:"slot" json:"slot"`
	PathID         string        `bson:"pathId,omitempty" json:"pathId,omitempty"`
	PathDistanceCm int           `bson:"pathDistanceCm" json:"pathDistanceCm"`
	TapeID         int64         `bson:"tapeId,omitempty" json:"tapeId,omitempty"`
	Light          *LightBinding `bson:"light,omitempty" json:"light,omitempty"`
}

// OnPath reports whether the location projects onto a pick path
func (l *Location) OnPath() bool {
	return l.PathID != ""
}

// SameBay reports whether two locations share an aisle and bay
func (l *Location) SameBay(other *Location) bool {
	return l.Aisle == other.Aisle && l.Bay == other.Bay
}

// DefaultPalletizerPrefixLen is how many leading item id characters key a
// pallet when the facility does not configure its own length
const DefaultPalletizerPrefixLen = 6

// Facility holds the path geometry, locations, and execution policies for
// one site. It is read-mostly: the layout import replaces it wholesale.
type Facility struct {
	FacilityID string `bson:"facilityId" json:"facilityId"`

	RequireBadgeAuth            bool `bson:"requireBadgeAuth" json:"requireBadgeAuth"`
	AllowMultiActivePerPosition bool `bson:"allowMultiActivePerPosition" json:"allowMultiActivePerPosition"`
	DropDoneCountOnPathChange   bool `bson:"dropDoneCountOnPathChange" json:"dropDoneCountOnPathChange"`
	PalletizerPrefixLen         int  `bson:"palletizerPrefixLen" json:"palletizerPrefixLen"`

	Paths     []Path     `bson:"paths" json:"paths"`
	Locations []Location `bson:"locations" json:"locations"`
}

// PathByID returns the named path
func (f *Facility) PathByID(pathID string) (*Path, error) {
	for i := range f.Paths {
		if f.Paths[i].PathID == pathID {
			return &f.Paths[i], nil
		}
	}
	return nil, ErrPathNotFound
}

// LocationByAlias resolves a scanned alias to a location. Alias matching is
// case-insensitive because handheld scanners upcase some symbologies.
func (f *Facility) LocationByAlias(alias string) (*Location, error) {
	for i := range f.Locations {
		if strings.EqualFold(f.Locations[i].Alias, alias) || f.Locations[i].LocationID == alias {
			return &f.Locations[i], nil
		}
	}
	return nil, ErrLocationNotFound
}

// LocationByTape resolves a decoded position-tape identifier to its location
func (f *Facility) LocationByTape(tapeID int64) (*Location, error) {
	for i := range f.Locations {
		if f.Locations[i].TapeID == tapeID && f.Locations[i].TapeID != 0 {
			return &f.Locations[i], nil
		}
	}
	return nil, ErrLocationNotFound
}

// LocationsOnPath returns the locations projected onto a path, ordered by
// ascending distance
func (f *Facility) LocationsOnPath(pathID string) []Location {
	var out []Location
	for _, loc := range f.Locations {
		if loc.PathID == pathID {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PathDistanceCm < out[j].PathDistanceCm
	})
	return out
}
