package signing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// NavEndpoint serves the current WBI key images.
const NavEndpoint = "https://api.bilibili.com/x/web-interface/nav"

// Keys is the WBI key pair published by the platform.
type Keys struct {
	Img string
	Sub string
}

// KeySource fetches the current WBI keys.
type KeySource interface {
	FetchKeys(ctx context.Context, cookie string) (Keys, error)
}

// KeyCache memoizes the first successful fetch for the life of the process.
// There is no expiry: if the platform rotates its keys mid-run, signed
// requests fail until restart.
type KeyCache struct {
	src   KeySource
	group singleflight.Group

	mu   sync.Mutex
	keys *Keys
}

func NewKeyCache(src KeySource) *KeyCache {
	return &KeyCache{src: src}
}

// Get returns the cached keys, fetching them once if needed. Concurrent
// callers share a single fetch, which is detached from the cancellation of
// whichever caller started it; a cancelled caller stops waiting early.
func (c *KeyCache) Get(ctx context.Context, cookie string) (Keys, error) {
	if k, ok := c.cached(); ok {
		return k, nil
	}

	ch := c.group.DoChan("keys", func() (any, error) {
		if k, ok := c.cached(); ok {
			return k, nil
		}
		k, err := c.src.FetchKeys(context.WithoutCancel(ctx), cookie)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = &k
		c.mu.Unlock()
		return k, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Keys{}, &Error{Engine: engineWBI, Err: fmt.Errorf("fetch keys: %w", ctx.Err())}
	}
	v, err := res.Val, res.Err
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return Keys{}, err
		}
		return Keys{}, &Error{Engine: engineWBI, Err: fmt.Errorf("fetch keys: %w", err)}
	}
	return v.(Keys), nil
}

func (c *KeyCache) cached() (Keys, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		return Keys{}, false
	}
	return *c.keys, true
}

// NavKeySource reads the keys from the nav endpoint's wbi_img URLs.
type NavKeySource struct {
	client   *resty.Client
	endpoint string
}

// NewNavKeySource creates a key source using client. An empty endpoint means
// NavEndpoint.
func NewNavKeySource(client *resty.Client, endpoint string) *NavKeySource {
	if endpoint == "" {
		endpoint = NavEndpoint
	}
	return &NavKeySource{client: client, endpoint: endpoint}
}

type navResponse struct {
	Data struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	} `json:"data"`
}

func (s *NavKeySource) FetchKeys(ctx context.Context, cookie string) (Keys, error) {
	var body navResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Cookie", cookie).
		SetResult(&body).
		Get(s.endpoint)
	if err != nil {
		return Keys{}, fmt.Errorf("request nav: %w", err)
	}
	if resp.IsError() {
		return Keys{}, fmt.Errorf("nav: status %d", resp.StatusCode())
	}

	keys := Keys{
		Img: keyFromURL(body.Data.WbiImg.ImgURL),
		Sub: keyFromURL(body.Data.WbiImg.SubURL),
	}
	if keys.Img == "" || keys.Sub == "" {
		return Keys{}, errors.New("nav: response has no wbi_img keys")
	}
	return keys, nil
}

// keyFromURL extracts "abc" from ".../bfs/wbi/abc.png".
func keyFromURL(u string) string {
	if u == "" {
		return ""
	}
	base := path.Base(u)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}
