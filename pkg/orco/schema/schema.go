// Package schema compiles and caches JSON Schema documents used to validate
// event payloads against resolved contract versions. Compilation is cached
// by content hash since contracts are immutable after construction (spec
// "Shared resources").
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Cache compiles gojsonschema.Schema values on first use and reuses them for
// every subsequent validation against the same schema document.
type Cache struct {
	mu   sync.RWMutex
	byID map[string]*gojsonschema.Schema
}

// NewCache returns an empty schema cache.
func NewCache() *Cache {
	return &Cache{byID: make(map[string]*gojsonschema.Schema)}
}

// Validate checks data against the given JSON Schema document, compiling
// and caching it if this is the first time this exact document is seen.
// A nil or empty schema document is treated as "accept anything", for
// optional-schema components such as a contract with no accepts
// constraint.
func (c *Cache) Validate(document any, data any) error {
	if document == nil {
		return nil
	}
	compiled, err := c.compile(document)
	if err != nil {
		return fmt.Errorf("schema: compile failed: %w", err)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("schema: validate failed: %w", err)
	}
	if !result.Valid() {
		return &ValidationError{Errors: result.Errors()}
	}
	return nil
}

func (c *Cache) compile(document any) (*gojsonschema.Schema, error) {
	key, err := contentKey(document)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	if s, ok := c.byID[key]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byID[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}

func contentKey(document any) (string, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("schema: document is not json-serializable: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ValidationError wraps the gojsonschema result errors for a failed check.
type ValidationError struct {
	Errors []gojsonschema.ResultError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "schema: validation failed"
	}
	return fmt.Sprintf("schema: validation failed: %s", e.Errors[0].String())
}
