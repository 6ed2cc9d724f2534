package transport

import "sync"

// Counter identifies a server request counter.
type Counter int

const (
	CntRequests   Counter = iota // holding register requests handled
	CntReads                     // successful reads
	CntWrites                    // successful writes
	CntExceptions                // requests answered with an exception

	cntNum = iota
)

var counterNames = [...]string{
	CntRequests:   "requests",
	CntReads:      "reads",
	CntWrites:     "writes",
	CntExceptions: "exceptions",
}

func (c Counter) String() string {
	if c < 0 || int(c) >= len(counterNames) {
		return "unknown"
	}
	return counterNames[c]
}

type counters struct {
	sync.Mutex
	ca [cntNum]uint64
}

func (c *counters) inc(cnt Counter) {
	c.Lock()
	defer c.Unlock()
	if cnt < 0 || int(cnt) >= len(c.ca) {
		return
	}
	c.ca[cnt]++
}

func (c *counters) get(cnt Counter) uint64 {
	c.Lock()
	defer c.Unlock()
	if cnt < 0 || int(cnt) >= len(c.ca) {
		return 0
	}
	return c.ca[cnt]
}

// snapshot returns every counter keyed by name.
func (c *counters) snapshot() map[string]uint64 {
	c.Lock()
	defer c.Unlock()
	m := make(map[string]uint64, len(c.ca))
	for i, v := range c.ca {
		m[Counter(i).String()] = v
	}
	return m
}

func (c *counters) reset() {
	c.Lock()
	defer c.Unlock()
	for i := range c.ca {
		c.ca[i] = 0
	}
}
