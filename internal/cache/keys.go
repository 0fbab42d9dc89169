package cache

import "fmt"

// ScrapeLockKey serialises scrape, enrichment and reparse runs across instances.
const ScrapeLockKey = "lock:scrape"

func JobKey(guid string) string {
	return fmt.Sprintf("job:%s", guid)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
