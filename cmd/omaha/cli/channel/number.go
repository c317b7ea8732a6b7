package channel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a branch or version number. It is either a non-negative integer
// or the TrunkNumber sentinel.
type Number int

// TrunkNumber stands in for both the branch and the version of the trunk channel.
// It is greater than every integer Number.
const TrunkNumber Number = -1

// trunkName is the textual form of TrunkNumber.
const trunkName = "trunk"

// IsTrunk reports whether n is the TrunkNumber sentinel.
func (n Number) IsTrunk() bool {
	return n == TrunkNumber
}

// Int returns the integer value. It is only meaningful when !n.IsTrunk().
func (n Number) Int() int {
	return int(n)
}

// Less orders numbers ascending with TrunkNumber last.
func (n Number) Less(other Number) bool {
	switch {
	case n.IsTrunk():
		return false
	case other.IsTrunk():
		return true
	default:
		return n < other
	}
}

func (n Number) String() string {
	if n.IsTrunk() {
		return trunkName
	}
	return strconv.Itoa(int(n))
}

// ParseNumber parses "trunk" or a non-negative decimal integer.
func ParseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	if s == trunkName {
		return TrunkNumber, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parsing number %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("parsing number %q: must not be negative", s)
	}
	return Number(v), nil
}

// MarshalJSON encodes TrunkNumber as "trunk" and everything else as a JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	if n.IsTrunk() {
		return json.Marshal(trunkName)
	}
	return json.Marshal(int(n))
}

// UnmarshalJSON accepts a JSON number, a numeric string or "trunk".
func (n *Number) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseNumber(s)
		if err != nil {
			return err
		}
		*n = parsed
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parsing number: %w", err)
	}
	if v < 0 {
		return fmt.Errorf("parsing number %d: must not be negative", v)
	}
	*n = Number(v)
	return nil
}

// MarshalYAML encodes TrunkNumber as "trunk" and everything else as an int.
func (n Number) MarshalYAML() (any, error) {
	if n.IsTrunk() {
		return trunkName, nil
	}
	return int(n), nil
}
