package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID returns a prefixed random identifier. UUIDv4 keeps identifiers
// unique for the lifetime of the process and across restarts.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

func GenerateStreamID() string {
	return GenerateID("stream")
}

func GenerateSessionID() string {
	return GenerateID("session")
}

func GenerateRequestID() string {
	return GenerateID("req")
}
