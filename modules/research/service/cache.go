package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	llmmodel "github.com/brightleads/dmengine/modules/llm/model"
	"github.com/brightleads/dmengine/modules/research/model"
)

// ttlCache is an in-process TTL cache keyed by a stable hash of the input
// shape. Writes overwrite; reads return a deep copy so callers may mutate
// freely. Eviction is opportunistic: expired and, failing that, one
// arbitrary entry are dropped on insert once the cache is at capacity.
type ttlCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	maxItems int
	ttl      time.Duration
}

type cacheEntry struct {
	result    model.Result
	expiresAt time.Time
}

func newTTLCache(maxItems int, ttl time.Duration) *ttlCache {
	if maxItems < 1 {
		maxItems = 1
	}
	return &ttlCache{entries: make(map[string]cacheEntry), maxItems: maxItems, ttl: ttl}
}

func (c *ttlCache) get(key string) (model.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.Result{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return model.Result{}, false
	}
	return deepCopyResult(e.result), true
}

func (c *ttlCache) set(key string, result model.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxItems {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{result: deepCopyResult(result), expiresAt: time.Now().Add(c.ttl)}
}

// evictLocked drops any expired entries; if none are expired it drops one
// arbitrary entry to make room. Caller must hold mu.
func (c *ttlCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxItems {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

func deepCopyResult(r model.Result) model.Result {
	out := model.Result{
		People: make([]model.Person, len(r.People)),
		Trace:  r.Trace,
	}
	for i, p := range r.People {
		cp := p
		cp.EmailsFound = append([]string{}, p.EmailsFound...)
		if p.GMapsRating != nil {
			v := *p.GMapsRating
			cp.GMapsRating = &v
		}
		if p.GMapsReviews != nil {
			v := *p.GMapsReviews
			cp.GMapsReviews = &v
		}
		out.People[i] = cp
	}
	out.Trace.SerperQueries = append([]string{}, r.Trace.SerperQueries...)
	if r.Trace.LLMInput.PlanMessages != nil {
		out.Trace.LLMInput.PlanMessages = append([]llmmodel.Message{}, r.Trace.LLMInput.PlanMessages...)
	}
	if r.Trace.LLMInput.FinalMessages != nil {
		out.Trace.LLMInput.FinalMessages = append([]llmmodel.Message{}, r.Trace.LLMInput.FinalMessages...)
	}
	if r.Trace.LLMUsage.Plan != nil {
		v := *r.Trace.LLMUsage.Plan
		out.Trace.LLMUsage.Plan = &v
	}
	if r.Trace.LLMCallTimestamp != nil {
		v := *r.Trace.LLMCallTimestamp
		out.Trace.LLMCallTimestamp = &v
	}
	if r.Trace.SerperCallTimestamp != nil {
		v := *r.Trace.SerperCallTimestamp
		out.Trace.SerperCallTimestamp = &v
	}
	return out
}

// CacheKey hashes the canonical (sorted-key, whitespace-free) JSON encoding
// of input, prefixed by namespace, so clock and randomness never influence
// the key.
func CacheKey(namespace string, input model.Input) (string, error) {
	canon, err := canonicalJSON(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(namespace + canon))
	return namespace + hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-encodes v through a generic map so object keys are
// sorted, independent of struct field declaration order.
func canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	return encodeCanonical(generic), nil
}

func encodeCanonical(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := "{"
		for i, k := range keys {
			if i > 0 {
				buf += ","
			}
			kb, _ := json.Marshal(k)
			buf += string(kb) + ":" + encodeCanonical(t[k])
		}
		return buf + "}"
	case []any:
		buf := "["
		for i, e := range t {
			if i > 0 {
				buf += ","
			}
			buf += encodeCanonical(e)
		}
		return buf + "]"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
