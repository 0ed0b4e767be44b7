package http

import (
	"sync/atomic"
	"time"
)

// TimeFormat is the IMF-fixdate layout of the Date header.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// dateCache holds the formatted current time. It is refreshed once a second
// so responses do not format the date themselves.
type dateCache struct {
	value atomic.Pointer[string]
}

func (d *dateCache) refresh(now time.Time) {
	s := now.UTC().Format(TimeFormat)
	d.value.Store(&s)
}

func (d *dateCache) get() string {
	if s := d.value.Load(); s != nil {
		return *s
	}
	d.refresh(time.Now())
	return *d.value.Load()
}
