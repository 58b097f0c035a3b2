package source

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func entriesAt(dates ...uint64) []entry {
	out := make([]entry, 0, len(dates))
	for _, d := range dates {
		id := strconv.FormatUint(d, 10)
		out = append(out, entry{ID: "v" + id, Title: "t" + id, URL: "https://v.test/" + id, Date: d})
	}
	return out
}

func mustThresholds(t *testing.T, show, isNew string) thresholds {
	t.Helper()
	th, err := parseThresholds("test", Request{ShowOffset: show, IsNewOffset: isNew})
	if err != nil {
		t.Fatalf("parse thresholds: %v", err)
	}
	return th
}

func TestCollect_NoOffsets(t *testing.T) {
	res := collect(entriesAt(100, 200, 300), mustThresholds(t, "", ""))

	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	for _, it := range res.Items {
		if !it.IsNew {
			t.Errorf("item %s: is_new = false, want true", it.ID)
		}
	}
	if res.NextOffset != "300" {
		t.Errorf("next offset = %q, want 300", res.NextOffset)
	}
}

func TestCollect_ShowFilterIsStrict(t *testing.T) {
	res := collect(entriesAt(250, 300, 400), mustThresholds(t, "300", "300"))

	if len(res.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(res.Items))
	}
	if res.Items[0].Date != "400" || !res.Items[0].IsNew {
		t.Errorf("item = %+v, want date 400 and new", res.Items[0])
	}
	if res.NextOffset != "400" {
		t.Errorf("next offset = %q, want 400", res.NextOffset)
	}
}

func TestCollect_Novelty(t *testing.T) {
	// show below is-new: items between them are listed but already seen.
	res := collect(entriesAt(150, 250, 350), mustThresholds(t, "100", "250"))

	want := map[string]bool{"150": false, "250": false, "350": true}
	if len(res.Items) != len(want) {
		t.Fatalf("items = %d, want %d", len(res.Items), len(want))
	}
	for _, it := range res.Items {
		if it.IsNew != want[it.Date] {
			t.Errorf("date %s: is_new = %v, want %v", it.Date, it.IsNew, want[it.Date])
		}
	}
}

func TestCollect_NothingPasses(t *testing.T) {
	res := collect(entriesAt(10, 20), mustThresholds(t, "20", ""))
	if len(res.Items) != 0 {
		t.Errorf("items = %d, want 0", len(res.Items))
	}
	if res.NextOffset != NoUpdate {
		t.Errorf("next offset = %q, want %q", res.NextOffset, NoUpdate)
	}

	res = collect(nil, thresholds{})
	if res.NextOffset != NoUpdate {
		t.Errorf("empty list next offset = %q, want %q", res.NextOffset, NoUpdate)
	}
}

func TestCollect_KeepsOrderAndMaxOffset(t *testing.T) {
	res := collect(entriesAt(300, 500, 100), thresholds{})
	got := []string{res.Items[0].Date, res.Items[1].Date, res.Items[2].Date}
	if got[0] != "300" || got[1] != "500" || got[2] != "100" {
		t.Errorf("order = %v, want response order", got)
	}
	if res.NextOffset != "500" {
		t.Errorf("next offset = %q, want 500", res.NextOffset)
	}
}

func TestParseThresholds_Malformed(t *testing.T) {
	for _, req := range []Request{
		{ShowOffset: "abc"},
		{IsNewOffset: "-1"},
		{ShowOffset: "12.5"},
	} {
		_, err := parseThresholds("bilibili", req)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%+v: error = %v, want *ParseError", req, err)
		}
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		url, prefix, want string
		wantErr           bool
	}{
		{"https://space.bilibili.com/1344420936", "/", "1344420936", false},
		{"https://space.bilibili.com/1344420936/video?spm=1", "/", "1344420936", false},
		{"https://www.kuaishou.com/profile/3xxcvi49q2r52gu", "/profile/", "3xxcvi49q2r52gu", false},
		{"https://www.ixigua.com/home/2497727299858013/", "/home/", "2497727299858013", false},
		{"https://www.douyin.com/user/MS4wLjABAAAA", "/user/", "MS4wLjABAAAA", false},
		{"https://www.douyin.com/user/", "/user/", "", true},
		{"https://www.kuaishou.com/short-video/1", "/profile/", "", true},
		{"https://space.bilibili.com", "/", "", true},
	}
	for _, tt := range tests {
		got, err := pathID("test", tt.url, tt.prefix)
		if tt.wantErr {
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("%s: error = %v, want *ParseError", tt.url, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: id = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestItemPublishedAt(t *testing.T) {
	it := Item{Date: "1709280000000"}
	if got := it.PublishedAt(); !got.Equal(time.UnixMilli(1709280000000)) {
		t.Errorf("published at = %v", got)
	}
	if !(Item{Date: "x"}).PublishedAt().IsZero() {
		t.Error("malformed date should give zero time")
	}
}
