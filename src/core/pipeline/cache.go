package pipeline

import "sync"

// Cache 解析结果备忘表：归一化关键词 -> 最终URL。
// 进程生命周期内不淘汰，条目数受见过的不同关键词约束。
// 占位图URL同样缓存：反复失败的关键词不该反复付全额重试成本。
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCache 创建备忘表
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get 查询归一化关键词对应的最终URL
func (c *Cache) Get(normalizedKeyword string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[normalizedKeyword]
	return url, ok
}

// Set 写入解析结果。同键二次写入要么是相同值要么是等效占位图，
// 后写覆盖先写不破坏任何不变式。
func (c *Cache) Set(normalizedKeyword, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalizedKeyword] = url
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
