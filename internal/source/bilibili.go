package source

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
)

const (
	bilibiliName     = "bilibili"
	bilibiliHost     = "space.bilibili.com"
	bilibiliAPI      = "https://api.bilibili.com/x/space/wbi/arc/search"
	bilibiliReferer  = "https://space.bilibili.com/"
	bilibiliVideoURL = "https://www.bilibili.com/video/"
)

// QuerySigner signs bilibili web API queries.
type QuerySigner interface {
	// Sign returns the signed query string for params.
	Sign(ctx context.Context, cookie string, params map[string]string) (string, error)
	// Decoy returns a random value for the dm_* fingerprint parameters.
	Decoy() string
}

// Bilibili lists an uploader's newest videos from the WBI-signed space API.
type Bilibili struct {
	base
	signer   QuerySigner
	endpoint string
}

func NewBilibili(client *resty.Client, signer QuerySigner, log *slog.Logger) *Bilibili {
	return &Bilibili{
		base:     base{client: client, log: log},
		signer:   signer,
		endpoint: bilibiliAPI,
	}
}

func (b *Bilibili) Name() string {
	return bilibiliName
}

type bilibiliResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		List struct {
			Vlist *[]struct {
				Bvid    string `json:"bvid"`
				Title   string `json:"title"`
				Created *int64 `json:"created"`
			} `json:"vlist"`
		} `json:"list"`
	} `json:"data"`
}

func (b *Bilibili) Fetch(ctx context.Context, req Request) (Result, error) {
	th, err := parseThresholds(bilibiliName, req)
	if err != nil {
		return Result{}, err
	}
	mid, err := pathID(bilibiliName, req.URL, "/")
	if err != nil {
		return Result{}, err
	}

	params := map[string]string{
		"mid":              mid,
		"pn":               "1",
		"ps":               "10",
		"index":            "1",
		"order":            "pubdate",
		"order_avoided":    "true",
		"platform":         "web",
		"web_location":     "1550101",
		"dm_img_list":      "[]",
		"dm_img_str":       b.signer.Decoy(),
		"dm_cover_img_str": b.signer.Decoy(),
		"dm_img_inter":     `{"ds":[],"wh":[0,0,0],"of":[0,0,0]}`,
	}
	query, err := b.signer.Sign(ctx, req.Cookie, params)
	if err != nil {
		return Result{}, err
	}

	r := b.request(ctx, bilibiliReferer+mid+"/video", req.Cookie)
	body, err := send(bilibiliName, r, http.MethodGet, b.endpoint+"?"+query)
	if err != nil {
		return Result{}, err
	}

	var resp bilibiliResponse
	if err := decode(bilibiliName, body, &resp); err != nil {
		return Result{}, err
	}
	if resp.Data.List.Vlist == nil {
		b.log.Warn("response has no video list", "platform", bilibiliName, "mid", mid, "code", resp.Code, "message", resp.Message)
		return collect(nil, th), nil
	}

	var entries []entry
	for _, v := range *resp.Data.List.Vlist {
		if !keep(b.log, bilibiliName, v.Bvid, v.Created) {
			continue
		}
		entries = append(entries, entry{
			ID:    v.Bvid,
			Title: v.Title,
			URL:   bilibiliVideoURL + v.Bvid,
			Date:  uint64(*v.Created) * 1000,
		})
	}
	return collect(entries, th), nil
}
