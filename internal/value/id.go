package value

import "github.com/google/uuid"

// ID is an opaque 128-bit entity identity, shared by nodes, edges and
// sessions.
type ID uuid.UUID

// NilID is the zero identity; never assigned to a real entity.
var NilID ID

// NewID generates a fresh random identity.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form of an identity.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, err
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == NilID
}
