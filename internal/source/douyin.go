package source

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
)

const (
	douyinName     = "douyin"
	douyinHost     = "www.douyin.com"
	douyinAPI      = "https://www.douyin.com/aweme/v1/web/aweme/post/"
	douyinReferer  = "https://www.douyin.com/user/"
	douyinVideoURL = "https://www.douyin.com/video/"
)

// TokenSigner computes the X-Bogus token for a douyin query string.
type TokenSigner interface {
	Sign(ctx context.Context, query, userAgent string) (string, error)
}

// Douyin lists a user's newest posts. Every query carries an X-Bogus token
// produced by an external script.
type Douyin struct {
	base
	userAgent string
	signer    func() (TokenSigner, error)
	endpoint  string
}

// NewDouyin creates the adapter. loadSigner is called at most once, on the
// first fetch, so a missing script only matters when a douyin asset exists.
func NewDouyin(client *resty.Client, userAgent string, loadSigner func() (TokenSigner, error), log *slog.Logger) *Douyin {
	return &Douyin{
		base:      base{client: client, log: log},
		userAgent: userAgent,
		signer:    sync.OnceValues(loadSigner),
		endpoint:  douyinAPI,
	}
}

func (d *Douyin) Name() string {
	return douyinName
}

type douyinResponse struct {
	StatusCode int `json:"status_code"`
	AwemeList  *[]struct {
		AwemeID    string `json:"aweme_id"`
		Desc       string `json:"desc"`
		CreateTime *int64 `json:"create_time"`
	} `json:"aweme_list"`
}

func (d *Douyin) Fetch(ctx context.Context, req Request) (Result, error) {
	th, err := parseThresholds(douyinName, req)
	if err != nil {
		return Result{}, err
	}
	id, err := pathID(douyinName, req.URL, "/user/")
	if err != nil {
		return Result{}, err
	}

	signer, err := d.signer()
	if err != nil {
		return Result{}, err
	}
	query := "aid=6383&sec_user_id=" + url.QueryEscape(id) +
		"&count=10&max_cursor=0&cookie_enabled=true&platform=PC&downlink=10"
	token, err := signer.Sign(ctx, query, d.userAgent)
	if err != nil {
		return Result{}, err
	}

	r := d.request(ctx, douyinReferer+id, req.Cookie)
	body, err := send(douyinName, r, http.MethodGet, d.endpoint+"?"+query+"&X-Bogus="+url.QueryEscape(token))
	if err != nil {
		return Result{}, err
	}

	var resp douyinResponse
	if err := decode(douyinName, body, &resp); err != nil {
		return Result{}, err
	}
	if resp.AwemeList == nil {
		d.log.Warn("response has no aweme list", "platform", douyinName, "user", id, "status_code", resp.StatusCode)
		return collect(nil, th), nil
	}

	var entries []entry
	for _, v := range *resp.AwemeList {
		if !keep(d.log, douyinName, v.AwemeID, v.CreateTime) {
			continue
		}
		entries = append(entries, entry{
			ID:    v.AwemeID,
			Title: v.Desc,
			URL:   douyinVideoURL + v.AwemeID,
			Date:  uint64(*v.CreateTime) * 1000,
		})
	}
	return collect(entries, th), nil
}
