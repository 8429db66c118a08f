package domain

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Context carries caller-supplied key/value pairs alongside a message.
// Iteration follows insertion order; the zero value and nil are both empty.
type Context struct {
	pairs *orderedmap.OrderedMap[string, string]
}

// NewContext builds a Context from alternating key/value arguments.
// A trailing key without a value is stored with an empty value.
func NewContext(kv ...string) *Context {
	c := &Context{}
	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		c.Set(kv[i], v)
	}
	return c
}

// Set stores value under key. Re-setting a key keeps its original position.
func (c *Context) Set(key, value string) {
	if c.pairs == nil {
		c.pairs = orderedmap.New[string, string]()
	}
	c.pairs.Set(key, value)
}

// SetAny stores the fmt %v rendering of value.
func (c *Context) SetAny(key string, value any) {
	c.Set(key, fmt.Sprintf("%v", value))
}

// Get returns the value for key.
func (c *Context) Get(key string) (string, bool) {
	if c == nil || c.pairs == nil {
		return "", false
	}
	return c.pairs.Get(key)
}

// Len returns the number of pairs.
func (c *Context) Len() int {
	if c == nil || c.pairs == nil {
		return 0
	}
	return c.pairs.Len()
}

// Each calls fn for every pair in insertion order.
func (c *Context) Each(fn func(key, value string)) {
	if c == nil || c.pairs == nil {
		return
	}
	for pair := c.pairs.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, c.Len())
	c.Each(func(k, _ string) { keys = append(keys, k) })
	return keys
}

// Clone returns an independent copy. Cloning nil yields an empty Context.
func (c *Context) Clone() *Context {
	out := &Context{}
	c.Each(out.Set)
	return out
}

// Merge copies every pair of other into c, overwriting existing keys.
func (c *Context) Merge(other *Context) {
	other.Each(c.Set)
}

// Map returns an unordered copy, mainly for JSON and log output.
func (c *Context) Map() map[string]string {
	m := make(map[string]string, c.Len())
	c.Each(func(k, v string) { m[k] = v })
	return m
}
