// Package feed decodes the two OmahaProxy documents: the per-OS list of
// current channel versions and the release history.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// DesktopOS lists the platforms whose versions count toward a channel.
// Records for any other OS (android, ios, ...) are ignored.
var DesktopOS = []string{"win", "linux", "mac", "cros"}

// ErrMalformedVersion is returned for version strings that are not four
// dotted integers.
var ErrMalformedVersion = errors.New("malformed version")

// Platform is one record of the current-versions document.
type Platform struct {
	OS       string    `json:"os"`
	Versions []Release `json:"versions"`
}

// Release is a channel's current version on one platform.
type Release struct {
	Channel string `json:"channel"`
	Version string `json:"version"`
}

// History is the release history document. Events are oldest first.
type History struct {
	Events []Event `json:"events"`
}

// Event is one release in the history document. Title looks like
// "<text> - MAJOR.minor.BRANCH.patch".
type Event struct {
	Title string `json:"title"`
}

// Version is a parsed MAJOR.minor.BRANCH.patch Chrome version.
type Version struct {
	Major  int
	Minor  int
	Branch int
	Patch  int
}

// Component returns the dotted component at index i (0 = major, 2 = branch).
func (v Version) Component(i int) (int, bool) {
	switch i {
	case 0:
		return v.Major, true
	case 1:
		return v.Minor, true
	case 2:
		return v.Branch, true
	case 3:
		return v.Patch, true
	default:
		return 0, false
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Branch, v.Patch)
}

// ParseVersion parses a four-component dotted version such as "30.0.1599.66".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ".") != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	parsed, err := goversion.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrMalformedVersion, s, err)
	}
	if strings.HasPrefix(s, "v") || parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	segs := parsed.Segments()
	if len(segs) != 4 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	return Version{Major: segs[0], Minor: segs[1], Branch: segs[2], Patch: segs[3]}, nil
}

// DecodeCurrentVersions decodes the current-versions document.
func DecodeCurrentVersions(data []byte) ([]Platform, error) {
	var platforms []Platform
	if err := json.Unmarshal(data, &platforms); err != nil {
		return nil, fmt.Errorf("parsing current versions: %w", err)
	}
	return platforms, nil
}

// IsDesktop reports whether the record belongs to one of DesktopOS.
func (p Platform) IsDesktop() bool {
	return slices.Contains(DesktopOS, p.OS)
}

// DecodeHistory decodes the release history document.
func DecodeHistory(data []byte) (History, error) {
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return History{}, fmt.Errorf("parsing release history: %w", err)
	}
	return history, nil
}

// Version extracts the version embedded in the event title. The version is
// the text after the first " - " separator.
func (e Event) Version() (Version, error) {
	parts := strings.Split(e.Title, " - ")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("%w: no version in title %q", ErrMalformedVersion, e.Title)
	}
	return ParseVersion(parts[1])
}
