package queue

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const dedupSuffixLen = 10

// processStart anchors dedup ids to a monotonic reading so wall-clock steps never repeat one.
var processStart = time.Now()

// NewDeduplicationID returns "<monotonic nanos>_<10 random alphanumerics>".
func NewDeduplicationID() string {
	nanos := processStart.UnixNano() + int64(time.Since(processStart))
	return strconv.FormatInt(nanos, 10) + "_" + randomSuffix()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:dedupSuffixLen]
}
