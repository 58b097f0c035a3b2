package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/vidwatch/internal/signing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

var discardLog = slog.New(slog.DiscardHandler)

func testClient(rt roundTripFunc) *resty.Client {
	return NewClient(ClientOptions{UserAgent: "test-ua", Logger: discardLog, Transport: rt})
}

func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

type fakeWBI struct {
	params map[string]string
	err    error
}

func (f *fakeWBI) Sign(_ context.Context, _ string, params map[string]string) (string, error) {
	f.params = params
	if f.err != nil {
		return "", f.err
	}
	return "mid=" + params["mid"] + "&w_rid=signed", nil
}

func (f *fakeWBI) Decoy() string { return "AB" }

type fakeToken struct {
	query, ua string
	token     string
	err       error
}

func (f *fakeToken) Sign(_ context.Context, query, ua string) (string, error) {
	f.query, f.ua = query, ua
	return f.token, f.err
}

// --- bilibili ---

func TestBilibili_Fetch(t *testing.T) {
	signer := &fakeWBI{}
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "api.bilibili.com", req.URL.Host)
		assert.Equal(t, "/x/space/wbi/arc/search", req.URL.Path)
		assert.Equal(t, "mid=42&w_rid=signed", req.URL.RawQuery)
		assert.Equal(t, "https://space.bilibili.com/42/video", req.Header.Get("Referer"))
		assert.Equal(t, "SESSDATA=x", req.Header.Get("Cookie"))
		assert.Equal(t, "test-ua", req.Header.Get("User-Agent"))
		return respond(req, 200, `{"code":0,"data":{"list":{"vlist":[
			{"bvid":"BV3","title":"third","created":300},
			{"bvid":"BV2","title":"second","created":200},
			{"bvid":"","title":"no id","created":250},
			{"bvid":"BV1","title":"first","created":100}
		]}}}`), nil
	})

	b := NewBilibili(testClient(rt), signer, discardLog)
	res, err := b.Fetch(context.Background(), Request{
		URL:         "https://space.bilibili.com/42?spm_id_from=333",
		Cookie:      "SESSDATA=x",
		ShowOffset:  "100000",
		IsNewOffset: "200000",
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	require.Equal(t, Item{ID: "BV3", Title: "third", URL: "https://www.bilibili.com/video/BV3", Date: "300000", IsNew: true}, res.Items[0])
	require.Equal(t, "200000", res.Items[1].Date)
	require.False(t, res.Items[1].IsNew)
	require.Equal(t, "300000", res.NextOffset)

	require.Equal(t, "42", signer.params["mid"])
	require.Equal(t, "pubdate", signer.params["order"])
	require.Equal(t, "1550101", signer.params["web_location"])
	require.Equal(t, "AB", signer.params["dm_img_str"])
	require.Equal(t, `{"ds":[],"wh":[0,0,0],"of":[0,0,0]}`, signer.params["dm_img_inter"])
}

func TestBilibili_SignedWithNavKeys(t *testing.T) {
	var searched bool
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/x/web-interface/nav":
			return respond(req, 200, `{"data":{"wbi_img":{
				"img_url":"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png",
				"sub_url":"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"}}}`), nil
		case "/x/space/wbi/arc/search":
			searched = true
			q := req.URL.Query()
			assert.Equal(t, "1344420936", q.Get("mid"))
			assert.NotEmpty(t, q.Get("wts"))
			assert.Len(t, q.Get("w_rid"), 32)
			assert.True(t, strings.HasSuffix(req.URL.RawQuery, "&w_rid="+q.Get("w_rid")))
			return respond(req, 200, `{"data":{"list":{"vlist":[]}}}`), nil
		}
		t.Errorf("unexpected request %s", req.URL)
		return respond(req, 404, ""), nil
	})

	client := testClient(rt)
	b := NewBilibili(client, signing.NewWBI(signing.NewNavKeySource(client, "")), discardLog)
	res, err := b.Fetch(context.Background(), Request{URL: "https://space.bilibili.com/1344420936"})
	require.NoError(t, err)
	require.True(t, searched)
	require.Empty(t, res.Items)
	require.Equal(t, NoUpdate, res.NextOffset)
}

func TestBilibili_MissingList(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(req, 200, `{"code":-352,"message":"risk control","data":{}}`), nil
	})
	res, err := NewBilibili(testClient(rt), &fakeWBI{}, discardLog).
		Fetch(context.Background(), Request{URL: "https://space.bilibili.com/1"})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, NoUpdate, res.NextOffset)
}

func TestBilibili_SigningFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Error("no request expected when signing fails")
		return respond(req, 500, ""), nil
	})
	signer := &fakeWBI{err: &signing.Error{Engine: "wbi", Err: errors.New("no keys")}}
	_, err := NewBilibili(testClient(rt), signer, discardLog).
		Fetch(context.Background(), Request{URL: "https://space.bilibili.com/1"})
	var se *SigningError
	require.ErrorAs(t, err, &se)
}

// --- kuaishou ---

func TestKuaishou_Fetch(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "https://www.kuaishou.com/graphql", req.URL.String())
		assert.Equal(t, "https://www.kuaishou.com/profile/3xabc", req.Header.Get("Referer"))
		assert.Contains(t, req.Header.Get("Content-Type"), "application/json")

		var body kuaishouRequest
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "visionProfilePhotoList", body.OperationName)
		assert.Equal(t, kuaishouVariables{UserID: "3xabc", Pcursor: "", Page: "profile"}, body.Variables)
		assert.Contains(t, body.Query, "visionProfilePhotoList(pcursor: $pcursor, userId: $userId")
		assert.Contains(t, body.Query, "fragment recoPhotoFragment on recoPhotoEntity {\n  __typename\n  id\n")

		return respond(req, 200, `{"data":{"visionProfilePhotoList":{"feeds":[
			{"photo":{"id":"p2","caption":"two","timestamp":1709366400000}},
			{"photo":{"id":"p1","caption":"one","timestamp":1709280000000}},
			{"photo":{"id":"p0","caption":"no date"}}
		]}}}`), nil
	})

	res, err := NewKuaishou(testClient(rt), discardLog).Fetch(context.Background(), Request{
		URL:        "https://www.kuaishou.com/profile/3xabc",
		ShowOffset: "1709280000000",
	})
	require.NoError(t, err)
	require.Equal(t, []Item{
		{ID: "p2", Title: "two", URL: "https://www.kuaishou.com/short-video/p2", Date: "1709366400000", IsNew: true},
	}, res.Items)
	require.Equal(t, "1709366400000", res.NextOffset)
}

func TestKuaishou_UndecodableBody(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(req, 200, `<html>captcha</html>`), nil
	})
	_, err := NewKuaishou(testClient(rt), discardLog).
		Fetch(context.Background(), Request{URL: "https://www.kuaishou.com/profile/3xabc"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kuaishou", pe.Platform)
}

// --- ixigua ---

func TestIxigua_Fetch(t *testing.T) {
	const assetURL = "https://www.ixigua.com/home/2497727299858013/"
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/videov2/author/new_video_list", req.URL.Path)
		q := req.URL.Query()
		assert.Equal(t, "2497727299858013", q.Get("to_user_id"))
		assert.Equal(t, "0", q.Get("offset"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "new", q.Get("order"))
		assert.Equal(t, assetURL, req.Header.Get("Referer"))
		return respond(req, 200, `{"data":{"videoList":[
			{"item_id":"7001","title":"a","publish_time":1700000000},
			{"item_id":"7000","title":"b","publish_time":1690000000}
		]}}`), nil
	})

	res, err := NewIxigua(testClient(rt), discardLog).Fetch(context.Background(), Request{
		URL:         assetURL,
		IsNewOffset: "1695000000000",
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "https://www.ixigua.com/7001", res.Items[0].URL)
	require.True(t, res.Items[0].IsNew)
	require.False(t, res.Items[1].IsNew)
	require.Equal(t, "1700000000000", res.NextOffset)
}

func TestIxigua_HTTPError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusForbidden, `{}`), nil
	})
	_, err := NewIxigua(testClient(rt), discardLog).
		Fetch(context.Background(), Request{URL: "https://www.ixigua.com/home/1"})
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, http.StatusForbidden, ne.Status)
}

func TestIxigua_TransportError(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := NewIxigua(testClient(rt), discardLog).
		Fetch(context.Background(), Request{URL: "https://www.ixigua.com/home/1"})
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.Zero(t, ne.Status)
}

// --- douyin ---

func TestDouyin_Fetch(t *testing.T) {
	const wantQuery = "aid=6383&sec_user_id=MS4wLjABAAAA&count=10&max_cursor=0&cookie_enabled=true&platform=PC&downlink=10"
	signer := &fakeToken{token: "DFSz/+ab"}
	loads := 0
	load := func() (TokenSigner, error) {
		loads++
		return signer, nil
	}

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/aweme/v1/web/aweme/post/", req.URL.Path)
		assert.Equal(t, wantQuery+"&X-Bogus=DFSz%2F%2Bab", req.URL.RawQuery)
		assert.Equal(t, "https://www.douyin.com/user/MS4wLjABAAAA", req.Header.Get("Referer"))
		return respond(req, 200, `{"status_code":0,"aweme_list":[
			{"aweme_id":"73","desc":"hello","create_time":1709366400}
		]}`), nil
	})

	d := NewDouyin(testClient(rt), "test-ua", load, discardLog)
	for range 2 {
		res, err := d.Fetch(context.Background(), Request{URL: "https://www.douyin.com/user/MS4wLjABAAAA"})
		require.NoError(t, err)
		require.Equal(t, []Item{
			{ID: "73", Title: "hello", URL: "https://www.douyin.com/video/73", Date: "1709366400000", IsNew: true},
		}, res.Items)
	}

	require.Equal(t, wantQuery, signer.query)
	require.Equal(t, "test-ua", signer.ua)
	require.Equal(t, 1, loads)
}

func TestDouyin_SignerLoadFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Error("no request expected without a signer")
		return respond(req, 500, ""), nil
	})
	load := func() (TokenSigner, error) {
		return nil, &signing.Error{Engine: "script", Err: errors.New("read script: missing")}
	}
	_, err := NewDouyin(testClient(rt), "ua", load, discardLog).
		Fetch(context.Background(), Request{URL: "https://www.douyin.com/user/x"})
	var se *SigningError
	require.ErrorAs(t, err, &se)
}

func TestDouyin_EmptyBody(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(req, 200, ""), nil
	})
	load := func() (TokenSigner, error) { return &fakeToken{token: "t"}, nil }
	_, err := NewDouyin(testClient(rt), "ua", load, discardLog).
		Fetch(context.Background(), Request{URL: "https://www.douyin.com/user/x"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestAdapters_MalformedOffset(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Error("no request expected for a malformed offset")
		return respond(req, 500, ""), nil
	})
	client := testClient(rt)
	adapters := map[string]Adapter{
		"https://space.bilibili.com/1":       NewBilibili(client, &fakeWBI{}, discardLog),
		"https://www.kuaishou.com/profile/1": NewKuaishou(client, discardLog),
		"https://www.ixigua.com/home/1":      NewIxigua(client, discardLog),
		"https://www.douyin.com/user/1": NewDouyin(client, "ua", func() (TokenSigner, error) {
			return &fakeToken{token: "t"}, nil
		}, discardLog),
	}
	for u, a := range adapters {
		_, err := a.Fetch(context.Background(), Request{URL: u, ShowOffset: "yesterday"})
		var pe *ParseError
		assert.ErrorAs(t, err, &pe, a.Name())
	}
}
