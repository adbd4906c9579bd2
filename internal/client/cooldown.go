package client

import "time"

// Cooldown is the client-local repaint gate. It is advisory UX only: the
// server does not enforce a paint rate, so this is the sole thing standing
// between the user and rapid-fire repaints.
type Cooldown struct {
	interval time.Duration
	readyAt  time.Time
	now      func() time.Time
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		now:      time.Now,
	}
}

// Ready reports whether a paint is currently allowed.
func (c *Cooldown) Ready() bool {
	return !c.now().Before(c.readyAt)
}

// Arm starts the cooldown after a paint.
func (c *Cooldown) Arm() {
	c.readyAt = c.now().Add(c.interval)
}

// RemainingSeconds returns the whole seconds left before the next paint is
// allowed, rounded up, 0 when ready.
func (c *Cooldown) RemainingSeconds() int {
	remaining := c.readyAt.Sub(c.now())
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
