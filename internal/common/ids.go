package common

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FallbackID builds "<prefix>-<ulid>" for messages whose provider gave no id.
func FallbackID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}
