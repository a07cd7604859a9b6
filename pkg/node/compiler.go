package node

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Compiler turns program source into function prototypes. Prototypes are
// immutable bytecode and may be instantiated in any number of states; no
// Lua value is shared that way.
type Compiler struct {
	cache bool

	mu     sync.Mutex
	protos map[string]*lua.FunctionProto
}

// NewCompiler creates a Compiler. With cache enabled, prototypes are reused
// for identical (path, source) pairs.
func NewCompiler(cache bool) *Compiler {
	return &Compiler{
		cache:  cache,
		protos: make(map[string]*lua.FunctionProto),
	}
}

// Compile parses and compiles src, naming the chunk after path.
func (c *Compiler) Compile(path string, src []byte) (*lua.FunctionProto, error) {
	var key string
	if c.cache {
		sum := sha256.Sum256(src)
		key = fmt.Sprintf("%s\x00%x", path, sum)
		c.mu.Lock()
		proto, ok := c.protos[key]
		c.mu.Unlock()
		if ok {
			return proto, nil
		}
	}

	chunk, err := parse.Parse(bytes.NewReader(src), path)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, err
	}

	if c.cache {
		c.mu.Lock()
		c.protos[key] = proto
		c.mu.Unlock()
	}
	return proto, nil
}

// Cached reports how many prototypes are cached.
func (c *Compiler) Cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.protos)
}
