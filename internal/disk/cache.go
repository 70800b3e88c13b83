package disk

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/pkg/fields"
)

type cachedSchema struct {
	hash   uint64
	schema fields.Schema
}

// SchemaCache memoizes the schema of each disk type. Entries are keyed on a
// hash of the definitions, so an edited type is rebuilt on next use.
type SchemaCache struct {
	mu     sync.RWMutex
	byCode map[string]cachedSchema
	logger *zap.SugaredLogger
}

// NewSchemaCache returns an empty cache. A nil logger discards output.
func NewSchemaCache(logger *zap.SugaredLogger) *SchemaCache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SchemaCache{byCode: map[string]cachedSchema{}, logger: logger}
}

// Schema returns the schema of t, building it when absent or stale.
func (c *SchemaCache) Schema(t DiskType) (fields.Schema, error) {
	if c == nil {
		return t.Schema()
	}
	raw, err := fields.EncodeJSON(t.Fields)
	if err != nil {
		return fields.Schema{}, err
	}
	h := xxhash.Sum64(raw)
	c.mu.RLock()
	e, ok := c.byCode[t.Code]
	c.mu.RUnlock()
	if ok && e.hash == h {
		metrics.CacheHits.Inc()
		return e.schema, nil
	}
	metrics.CacheMisses.Inc()
	s, err := fields.NewSchema(t.Fields)
	if err != nil {
		c.logger.Warnw("invalid disk type schema", "code", t.Code, "err", err)
		return fields.Schema{}, err
	}
	c.mu.Lock()
	c.byCode[t.Code] = cachedSchema{hash: h, schema: s}
	c.mu.Unlock()
	c.logger.Debugw("schema cached", "code", t.Code, "fields", s.Len(), "hash", strconv.FormatUint(h, 16))
	return s, nil
}

// Invalidate drops the entry of one type.
func (c *SchemaCache) Invalidate(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.byCode, code)
	c.mu.Unlock()
}

// Reset drops every entry.
func (c *SchemaCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.byCode = map[string]cachedSchema{}
	c.mu.Unlock()
	c.logger.Debugw("schema cache reset")
}

// Len returns the number of cached schemas.
func (c *SchemaCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byCode)
}
