package model

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a new opaque identifier (32 lowercase hex chars).
func GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
