// Package channel describes Chrome release channels and the (channel, branch,
// version) triples that identify a release.
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Channel is one of Chrome's release tracks.
type Channel string

// Channels from oldest to newest.
const (
	Stable Channel = "stable"
	Beta   Channel = "beta"
	Dev    Channel = "dev"
	Trunk  Channel = "trunk"
)

// ErrUnknownChannel is returned for names outside the channel enumeration.
var ErrUnknownChannel = errors.New("unknown channel")

var allNames = [...]Channel{Stable, Beta, Dev, Trunk}

// AllNames returns every channel, oldest first. The order never changes.
func AllNames() []Channel {
	names := allNames
	return names[:]
}

// Parse converts a channel name into a Channel.
func Parse(name string) (Channel, error) {
	ch := Channel(strings.TrimSpace(name))
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Valid reports whether c is part of the enumeration.
func (c Channel) Valid() bool {
	return c.Index() >= 0
}

// Index returns the position of c in AllNames, or -1.
func (c Channel) Index() int {
	for i, name := range allNames {
		if name == c {
			return i
		}
	}
	return -1
}

func (c Channel) String() string {
	return string(c)
}

// Newest returns the most recent channel among channels. The boolean is false
// when none of them is a known channel.
func Newest(channels ...Channel) (Channel, bool) {
	present := make(map[Channel]struct{}, len(channels))
	for _, ch := range channels {
		present[ch] = struct{}{}
	}
	for i := len(allNames) - 1; i >= 0; i-- {
		if _, ok := present[allNames[i]]; ok {
			return allNames[i], true
		}
	}
	return "", false
}

// SplitChannelNameFromPath splits a leading channel name off path.
// "beta/extensions/foo" yields (Beta, "extensions/foo", true). When the first
// segment is not a channel the path is returned unchanged with ok == false.
func SplitChannelNameFromPath(path string) (ch Channel, rest string, ok bool) {
	first, second, found := strings.Cut(path, "/")
	if !found {
		second = ""
	}
	if c := Channel(first); c.Valid() {
		return c, second, true
	}
	return "", path, false
}

// Info identifies a Chrome release. Branch and version numbers can repeat
// across channels (beta and dev often share a branch), so all three fields are
// needed to tell releases apart. Info values are comparable with ==.
type Info struct {
	Channel Channel `json:"channel" yaml:"channel"`
	Branch  Number  `json:"branch" yaml:"branch"`
	Version Number  `json:"version" yaml:"version"`
}

// NewInfo builds an Info.
func NewInfo(ch Channel, branch, version Number) Info {
	return Info{Channel: ch, Branch: branch, Version: version}
}

// TrunkInfo is the Info of the trunk channel.
func TrunkInfo() Info {
	return NewInfo(Trunk, TrunkNumber, TrunkNumber)
}

func (i Info) String() string {
	return fmt.Sprintf("%s (branch %s, version %s)", i.Channel, i.Branch, i.Version)
}
