package gpt

import (
	"strings"

	"github.com/google/uuid"
)

// GUID is a GUID in on-disk byte order: the first three groups are little
// endian.
type GUID [16]byte

// FromUUID converts a canonical UUID to on-disk order.
func FromUUID(u uuid.UUID) GUID {
	return GUID{
		u[3], u[2], u[1], u[0],
		u[5], u[4],
		u[7], u[6],
		u[8], u[9], u[10], u[11], u[12], u[13], u[14], u[15],
	}
}

// ParseGUID parses the canonical hyphenated form.
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, err
	}
	return FromUUID(u), nil
}

// MustParseGUID is like ParseGUID but panics on malformed input. It is
// meant for constants.
func MustParseGUID(s string) GUID {
	return FromUUID(uuid.MustParse(s))
}

// NewRandomGUID returns a random version 4 GUID.
func NewRandomGUID() GUID {
	return FromUUID(uuid.New())
}

// UUID converts g to canonical byte order.
func (g GUID) UUID() uuid.UUID {
	return uuid.UUID{
		g[3], g[2], g[1], g[0],
		g[5], g[4],
		g[7], g[6],
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15],
	}
}

// String returns the upper-case hyphenated form.
func (g GUID) String() string {
	return strings.ToUpper(g.UUID().String())
}

// IsZero reports whether every byte of g is zero.
func (g GUID) IsZero() bool {
	return g == GUID{}
}
