package normalize

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GUIDPrefix namespaces identifiers minted for the portal's listings.
const GUIDPrefix = "iom-gov-"

// GUID derives the stable identity key for a listing from its source URL.
// Case and surrounding whitespace are ignored.
//
// With no URL the result embeds the current time and a random suffix, so
// such listings are never deduplicated across runs.
func GUID(sourceURL string) string {
	key := strings.ToLower(strings.TrimSpace(sourceURL))
	if key == "" {
		return GUIDPrefix + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + uuid.NewString()[:8]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%s%08x", GUIDPrefix, h.Sum32())
}
