package utils

import "github.com/google/uuid"

// NewUUID7 returns a time-ordered UUID string, used as session identifier.
func NewUUID7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// ShortID returns the trailing segment of a UUID, enough to keep device
// names unique across sessions without making them unwieldy. The tail is
// used because a V7 UUID front-loads its timestamp: two sessions started
// close together share a long leading prefix while their random tails
// differ.
func ShortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[len(id)-8:]
}
