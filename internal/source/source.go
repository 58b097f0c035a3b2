// Package source talks to the video platforms. Each platform has an Adapter
// that fetches an account's recent uploads and applies the shared show and
// novelty thresholds; Registry picks the adapter for a URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// NoUpdate is the next offset reported when no item passed the show filter.
const NoUpdate = "0"

// Item is one published video.
type Item struct {
	ID    string
	Title string
	URL   string
	Date  string // publish time in epoch milliseconds
	IsNew bool   // false when it was already reported by an earlier run
}

// PublishedAt converts Date to a time. It returns the zero time when Date is
// not a number.
func (i Item) PublishedAt() time.Time {
	ms, err := strconv.ParseInt(i.Date, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Request describes one fetch. Empty offsets mean "absent".
type Request struct {
	URL         string
	Cookie      string
	ShowOffset  string // items at or before this mark are dropped
	IsNewOffset string // items after this mark are flagged new
}

// Result is what an adapter found. NextOffset is the greatest date among
// Items, or NoUpdate when Items is empty.
type Result struct {
	Items      []Item
	NextOffset string
}

// Adapter fetches recent uploads from one platform.
type Adapter interface {
	// Name returns the platform identifier (e.g. "bilibili").
	Name() string

	Fetch(ctx context.Context, req Request) (Result, error)
}

// entry is a decoded list element before thresholds are applied.
type entry struct {
	ID    string
	Title string
	URL   string
	Date  uint64
}

type thresholds struct {
	show, isNew       uint64
	hasShow, hasIsNew bool
}

func parseThresholds(platform string, req Request) (thresholds, error) {
	var th thresholds
	if req.ShowOffset != "" {
		v, err := strconv.ParseUint(req.ShowOffset, 10, 64)
		if err != nil {
			return th, &ParseError{Platform: platform, What: "show offset " + strconv.Quote(req.ShowOffset), Err: err}
		}
		th.show, th.hasShow = v, true
	}
	if req.IsNewOffset != "" {
		v, err := strconv.ParseUint(req.IsNewOffset, 10, 64)
		if err != nil {
			return th, &ParseError{Platform: platform, What: "is-new offset " + strconv.Quote(req.IsNewOffset), Err: err}
		}
		th.isNew, th.hasIsNew = v, true
	}
	return th, nil
}

// collect keeps entries strictly after the show offset, flags the ones
// strictly after the is-new offset, and reports the greatest kept date.
// Entry order is preserved.
func collect(entries []entry, th thresholds) Result {
	var (
		items []Item
		next  uint64
	)
	for _, e := range entries {
		if th.hasShow && e.Date <= th.show {
			continue
		}
		items = append(items, Item{
			ID:    e.ID,
			Title: e.Title,
			URL:   e.URL,
			Date:  strconv.FormatUint(e.Date, 10),
			IsNew: !th.hasIsNew || e.Date > th.isNew,
		})
		next = max(next, e.Date)
	}
	if len(items) == 0 {
		return Result{NextOffset: NoUpdate}
	}
	return Result{Items: items, NextOffset: strconv.FormatUint(next, 10)}
}

// keep reports whether a decoded element has the fields an Item needs, and
// logs the ones it drops.
func keep(log *slog.Logger, platform, id string, date *int64) bool {
	if id == "" || date == nil || *date < 0 {
		log.Warn("skipping entry without id or date", "platform", platform, "id", id)
		return false
	}
	return true
}

// base holds what every adapter needs to issue requests.
type base struct {
	client *resty.Client
	log    *slog.Logger
}

func (b base) request(ctx context.Context, referer, cookie string) *resty.Request {
	return b.client.R().
		SetContext(ctx).
		SetHeader("Referer", referer).
		SetHeader("Cookie", cookie)
}

// pathID returns the first path segment of rawURL after prefix, so
// "/home/123/" with prefix "/home/" yields "123".
func pathID(platform, rawURL, prefix string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &ParseError{Platform: platform, What: "url", Err: err}
	}
	rest, ok := strings.CutPrefix(u.Path, prefix)
	if !ok {
		return "", &ParseError{Platform: platform, What: "url", Err: fmt.Errorf("path %q does not start with %q", u.Path, prefix)}
	}
	id, _, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	if id == "" {
		return "", &ParseError{Platform: platform, What: "url", Err: errors.New("no account id in path")}
	}
	return id, nil
}
