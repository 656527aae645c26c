package analyze

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes SourceUnits keyed by (path, content signature). Analysis of
// the same content is deduplicated across concurrent callers; changed
// content yields a distinct key, so stale units are never returned.
type Cache struct {
	data  sync.Map
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{}
}

// Unit returns the SourceUnit for the given content, analyzing at most once
// per distinct (path, signature).
func (c *Cache) Unit(path string, content []byte) (*SourceUnit, error) {
	if c == nil {
		return nil, fmt.Errorf("unit cache is nil")
	}
	key := path + "\x00" + Sign(content)
	if v, ok := c.data.Load(key); ok {
		return v.(*SourceUnit), nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		a, ok := For(path)
		if !ok {
			return nil, fmt.Errorf("no analyzer handles %s", path)
		}
		unit, err := a.Analyze(path, content)
		if err != nil {
			return nil, err
		}
		c.data.Store(key, unit)
		return unit, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SourceUnit), nil
}
