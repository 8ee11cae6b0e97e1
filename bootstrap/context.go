package bootstrap

import (
	"fmt"
	"sync"

	"github.com/aspen-market/backbone/config"
)

// Context carries config and lets hooks hand components to later hooks
// (e.g. the database hook publishes *sql.DB for the store/candles hooks to pick up).
type Context struct {
	Config *config.Config
	Data   map[string]interface{}
	mu     sync.RWMutex
}

func NewContext(cfg *config.Config) *Context {
	return &Context{
		Config: cfg,
		Data:   make(map[string]interface{}),
	}
}

func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Data[key] = value
}

func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.Data[key]
	return val, ok
}

func (c *Context) MustGet(key string) interface{} {
	val, ok := c.Get(key)
	if !ok {
		panic(fmt.Sprintf("bootstrap: context key %q not found", key))
	}
	return val
}
