package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/objectfs/cloudkit/internal/validate"
)

// Credentials identify the account and region a client is scoped to.
type Credentials struct {
	AccessKey string `yaml:"access_key" json:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" json:"-" validate:"required"`
	Region    string `yaml:"region" json:"region" validate:"required"`
}

// Validate reports the first empty field as an InvalidArgument error.
func (c Credentials) Validate() error {
	return validate.Struct(c)
}

// Key returns the cache key for clients built from these credentials. The secret
// participates only as a truncated SHA-256 fingerprint so rotated secrets get a
// fresh client while the key itself never carries the secret.
func (c Credentials) Key() string {
	return c.AccessKey + "/" + c.Region + "/" + fingerprint(c.SecretKey)
}

// String omits the secret key.
func (c Credentials) String() string {
	return c.AccessKey + "@" + c.Region
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Constructions uint64  `json:"constructions"`
	Evictions     uint64  `json:"evictions"`
	Size          int     `json:"size"`
	Capacity      int     `json:"capacity"`
	HitRate       float64 `json:"hit_rate"`
	Utilization   float64 `json:"utilization"`
}

// ObjectInfo represents metadata about a stored object
type ObjectInfo struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
	ContentType  string    `json:"content_type"`
	CacheControl string    `json:"cache_control"`
}
