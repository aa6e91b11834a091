// Package vardiff retargets a session's share difficulty from its accepted
// share rate.
package vardiff

import (
	"math/bits"
	"sync"
	"time"
)

// Config bounds and paces a Controller
type Config struct {
	Default  uint64
	Min      uint64
	Max      uint64
	Target   time.Duration // desired interval between accepted shares
	Retarget time.Duration // observation window before a retarget
}

// Controller tracks accepted shares of one session and proposes the
// difficulty for the next job. It moves in power-of-two steps.
type Controller struct {
	config Config

	mu          sync.Mutex
	current     uint64
	shares      int64
	windowStart time.Time
}

// NewController creates a controller starting at the default difficulty
func NewController(config Config, now time.Time) *Controller {
	c := &Controller{config: config, windowStart: now}
	c.current = c.clamp(config.Default)
	return c
}

// AddAcceptedShare counts one accepted share
func (c *Controller) AddAcceptedShare() {
	c.mu.Lock()
	c.shares++
	c.mu.Unlock()
}

// CalcCurDiff returns the difficulty to assign with the next job, retargeting
// once the observation window has elapsed
func (c *Controller) CalcCurDiff(now time.Time) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := now.Sub(c.windowStart)
	if elapsed <= 0 || elapsed < c.config.Retarget {
		return c.current
	}

	next := c.current
	if c.shares == 0 {
		next = c.current / 2
	} else {
		expected := elapsed.Seconds() / c.config.Target.Seconds()
		ratio := float64(c.shares) / expected
		switch {
		case ratio >= 2:
			hi, lo := bits.Mul64(c.current, floorPow2(uint64(ratio)))
			if hi != 0 {
				lo = c.config.Max
			}
			next = lo
		case ratio <= 0.5:
			next = c.current / floorPow2(uint64(1/ratio))
		}
	}

	c.current = c.clamp(next)
	c.shares = 0
	c.windowStart = now
	return c.current
}

func (c *Controller) clamp(diff uint64) uint64 {
	return min(max(diff, c.config.Min), c.config.Max)
}

func floorPow2(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return 1 << (bits.Len64(v) - 1)
}
