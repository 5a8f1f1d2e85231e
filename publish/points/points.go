// Package points models the 32-bit point address space: galaxies, stars and
// planets, and the arithmetic that relates a parent to its children.
package points

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is an identity number in [0, 2^32).
type Point uint32

// Size is the size class of a point, derived from its magnitude.
type Size uint8

const (
	Galaxy Size = iota
	Star
	Planet
)

const (
	starStep   = 1 << 8
	planetStep = 1 << 16
)

var (
	ErrInvalidParent = errors.New("parent cannot sponsor points of that size")
	ErrOutOfRange    = errors.New("child point out of range")
)

// Size derives the size class from the point number.
func (p Point) Size() Size {
	switch {
	case p < starStep:
		return Galaxy
	case p < planetStep:
		return Star
	default:
		return Planet
	}
}

// Prefix returns the point's sponsor: the galaxy of a star, the star of a
// planet. A galaxy is its own prefix.
func (p Point) Prefix() Point {
	switch p.Size() {
	case Galaxy:
		return p
	case Star:
		return p & 0xff
	default:
		return p & 0xffff
	}
}

func (p Point) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Step is the distance between consecutive children of this size under the
// same parent.
func (s Size) Step() uint64 {
	switch s {
	case Star:
		return starStep
	case Planet:
		return planetStep
	default:
		return 0
	}
}

// upper is the exclusive numeric bound of the size class.
func (s Size) upper() uint64 {
	switch s {
	case Galaxy:
		return starStep
	case Star:
		return planetStep
	default:
		return math.MaxUint32 + 1
	}
}

// Parent is the size class that sponsors points of size s.
func (s Size) Parent() (Size, bool) {
	switch s {
	case Star:
		return Galaxy, true
	case Planet:
		return Star, true
	default:
		return 0, false
	}
}

func (s Size) String() string {
	switch s {
	case Galaxy:
		return "galaxy"
	case Star:
		return "star"
	case Planet:
		return "planet"
	default:
		return fmt.Sprintf("Size(%d)", uint8(s))
	}
}

// ParseSize accepts "galaxy", "star" or "planet".
func ParseSize(v string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "galaxy":
		return Galaxy, nil
	case "star":
		return Star, nil
	case "planet":
		return Planet, nil
	default:
		return 0, fmt.Errorf("unknown size class %q", v)
	}
}

// ParsePoint parses a decimal point number.
func ParsePoint(v string) (Point, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse point %q: %w", v, err)
	}
	return Point(n), nil
}

// Child computes parent + offset*step(size). It is recomputed on every call;
// nothing about children is cached.
func Child(parent Point, size Size, offset uint32) (Point, error) {
	if ps, ok := size.Parent(); !ok || parent.Size() != ps {
		return 0, fmt.Errorf("%w: %s %d, child size %s", ErrInvalidParent, parent.Size(), parent, size)
	}
	candidate := uint64(parent) + uint64(offset)*size.Step()
	if candidate >= size.upper() {
		return 0, fmt.Errorf("%w: %d + %d*%d", ErrOutOfRange, parent, offset, size.Step())
	}
	return Point(candidate), nil
}
