// Package watermark keeps the small per-asset history of "furthest item seen"
// marks that decides which fetched items are new.
package watermark

// MaxHistory is the maximum number of offsets kept per asset.
const MaxHistory = 3

// Offset records the furthest item date (mark) seen on a calendar date.
type Offset struct {
	Date Date   `yaml:"date"`
	Mark string `yaml:"mark"`
}

// History is an asset's offsets in insertion order. Entries are compared by
// Date only; Mark is opaque here.
type History []Offset

// Newest returns the entry with the latest date. With excludeToday set,
// entries dated today are skipped, so ok is false when every entry is today's.
func (h History) Newest(excludeToday bool, today Date) (Offset, bool) {
	return h.pick(excludeToday, today, Date.After)
}

// Oldest returns the entry with the earliest date, skipping today's entries
// when excludeToday is set.
func (h History) Oldest(excludeToday bool, today Date) (Offset, bool) {
	return h.pick(excludeToday, today, Date.Before)
}

func (h History) pick(excludeToday bool, today Date, better func(Date, Date) bool) (Offset, bool) {
	var (
		found Offset
		ok    bool
	)
	for _, o := range h {
		if excludeToday && o.Date == today {
			continue
		}
		if !ok || better(o.Date, found.Date) {
			found = o
			ok = true
		}
	}
	return found, ok
}

// Update records mark as today's watermark.
//
// A mark equal to the newest entry's mark is a no-op whatever its date. When
// the newest entry is dated today, every entry dated today is replaced. If the
// history then holds more than MaxHistory entries, every entry sharing the
// oldest date is dropped.
func (h *History) Update(mark string, today Date) {
	cur, ok := h.Newest(false, today)
	if ok {
		if cur.Mark == mark {
			return
		}
		if cur.Date == today {
			h.removeDate(today)
		}
	}
	*h = append(*h, Offset{Date: today, Mark: mark})

	if len(*h) > MaxHistory {
		oldest, _ := h.Oldest(false, today)
		h.removeDate(oldest.Date)
	}
}

func (h *History) removeDate(d Date) {
	kept := (*h)[:0]
	for _, o := range *h {
		if o.Date != d {
			kept = append(kept, o)
		}
	}
	*h = kept
}
