package source

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
)

const (
	ixiguaName     = "ixigua"
	ixiguaHost     = "www.ixigua.com"
	ixiguaAPI      = "https://www.ixigua.com/api/videov2/author/new_video_list"
	ixiguaVideoURL = "https://www.ixigua.com/"
)

// Ixigua lists an author's newest videos. The endpoint needs no signature.
type Ixigua struct {
	base
	endpoint string
}

func NewIxigua(client *resty.Client, log *slog.Logger) *Ixigua {
	return &Ixigua{
		base:     base{client: client, log: log},
		endpoint: ixiguaAPI,
	}
}

func (x *Ixigua) Name() string {
	return ixiguaName
}

type ixiguaResponse struct {
	Data struct {
		VideoList *[]struct {
			ItemID      string `json:"item_id"`
			Title       string `json:"title"`
			PublishTime *int64 `json:"publish_time"`
		} `json:"videoList"`
	} `json:"data"`
}

func (x *Ixigua) Fetch(ctx context.Context, req Request) (Result, error) {
	th, err := parseThresholds(ixiguaName, req)
	if err != nil {
		return Result{}, err
	}
	id, err := pathID(ixiguaName, req.URL, "/home/")
	if err != nil {
		return Result{}, err
	}

	r := x.request(ctx, req.URL, req.Cookie).
		SetQueryParams(map[string]string{
			"to_user_id": id,
			"offset":     "0",
			"limit":      "10",
			"order":      "new",
		})
	body, err := send(ixiguaName, r, http.MethodGet, x.endpoint)
	if err != nil {
		return Result{}, err
	}

	var resp ixiguaResponse
	if err := decode(ixiguaName, body, &resp); err != nil {
		return Result{}, err
	}
	if resp.Data.VideoList == nil {
		x.log.Warn("response has no video list", "platform", ixiguaName, "user", id)
		return collect(nil, th), nil
	}

	var entries []entry
	for _, v := range *resp.Data.VideoList {
		if !keep(x.log, ixiguaName, v.ItemID, v.PublishTime) {
			continue
		}
		entries = append(entries, entry{
			ID:    v.ItemID,
			Title: v.Title,
			URL:   ixiguaVideoURL + v.ItemID,
			Date:  uint64(*v.PublishTime) * 1000,
		})
	}
	return collect(entries, th), nil
}
