package store

import (
	"fmt"

	"github.com/google/uuid"
)

// deterministicUUID generates a stable UUID from a namespace tag and key,
// the same SHA1-derived-UUID pattern the teacher used for Qdrant point IDs.
func deterministicUUID(namespace, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%s", namespace, key))).String()
}
