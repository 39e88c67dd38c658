package field

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/formsync/internal/ir"
)

// SlotProvider derives the delivery windows offered for a date.
type SlotProvider interface {
	Slots(date ir.Date) ir.List
}

// SlotProviderFunc adapts a function to SlotProvider.
type SlotProviderFunc func(date ir.Date) ir.List

// Slots calls f.
func (f SlotProviderFunc) Slots(date ir.Date) ir.List {
	return f(date)
}

// CalendarSlots offers fixed windows per weekday class.
// Dates before Today offer nothing.
type CalendarSlots struct {
	Weekday []string
	Weekend []string
	// Today returns the current day. Nil means no lower bound.
	Today func() time.Time
}

// DefaultSlots returns the standard delivery calendar with no lower bound.
func DefaultSlots() *CalendarSlots {
	return &CalendarSlots{
		Weekday: []string{"09:00-12:00", "12:00-15:00", "15:00-18:00", "18:00-21:00"},
		Weekend: []string{"10:00-14:00", "14:00-18:00"},
	}
}

// Slots implements SlotProvider.
func (c *CalendarSlots) Slots(date ir.Date) ir.List {
	t := date.Time()
	if t.IsZero() {
		return ir.List{}
	}
	if c.Today != nil {
		today := ir.NewDate(c.Today()).Time()
		if t.Before(today) {
			return ir.List{}
		}
	}

	windows := c.Weekday
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		windows = c.Weekend
	}

	out := make(ir.List, len(windows))
	for i, w := range windows {
		out[i] = ir.Text(w)
	}
	return out
}

// CachedSlots memoizes another provider per date.
// Entries expire after the configured TTL so calendar changes are picked up.
type CachedSlots struct {
	next  SlotProvider
	cache *gocache.Cache
}

// NewCachedSlots wraps next with an in-memory cache.
// ttl <= 0 keeps entries until the process exits.
func NewCachedSlots(next SlotProvider, ttl time.Duration) *CachedSlots {
	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}
	return &CachedSlots{
		next:  next,
		cache: gocache.New(expiration, cleanup),
	}
}

// Slots implements SlotProvider.
func (c *CachedSlots) Slots(date ir.Date) ir.List {
	key := string(date)
	if cached, ok := c.cache.Get(key); ok {
		return copyList(cached.(ir.List))
	}
	slots := c.next.Slots(date)
	c.cache.SetDefault(key, copyList(slots))
	return slots
}

// Len returns the number of cached dates.
func (c *CachedSlots) Len() int {
	return c.cache.ItemCount()
}

func copyList(l ir.List) ir.List {
	out := make(ir.List, len(l))
	copy(out, l)
	return out
}
