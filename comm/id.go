package comm

import "github.com/google/uuid"

// ID identifies one logical data point for its whole trip through a pipeline.
type ID uuid.UUID

// NewID mints a fresh item identity.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// Token marks one polling round of a router.
type Token uuid.UUID

// NewToken mints a token for a new polling round.
func NewToken() Token {
	return Token(uuid.New())
}
