package source

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
)

const (
	kuaishouName     = "kuaishou"
	kuaishouHost     = "www.kuaishou.com"
	kuaishouAPI      = "https://www.kuaishou.com/graphql"
	kuaishouReferer  = "https://www.kuaishou.com/profile/"
	kuaishouVideoURL = "https://www.kuaishou.com/short-video/"
)

const kuaishouPhotoFields = `  __typename
  id
  duration
  caption
  originCaption
  likeCount
  viewCount
  commentCount
  realLikeCount
  coverUrl
  photoUrl
  photoH265Url
  manifest
  manifestH265
  videoResource
  coverUrls {
    url
    __typename
  }
  timestamp
  expTag
  animatedCoverUrl
  distance
  videoRatio
  liked
  stereoType
  profileUserTopPhoto
  musicBlocked
  riskTagContent
  riskTagUrl
`

// kuaishouQuery is the web client's profile feed query.
const kuaishouQuery = "fragment photoContent on PhotoEntity {\n" + kuaishouPhotoFields + "}\n\n" +
	"fragment recoPhotoFragment on recoPhotoEntity {\n" + kuaishouPhotoFields + "}\n\n" +
	`fragment feedContent on Feed {
  type
  author {
    id
    name
    headerUrl
    following
    headerUrls {
      url
      __typename
    }
    __typename
  }
  photo {
    ...photoContent
    ...recoPhotoFragment
    __typename
  }
  canAddComment
  llsid
  status
  currentPcursor
  tags {
    type
    name
    __typename
  }
  __typename
}

query visionProfilePhotoList($pcursor: String, $userId: String, $page: String, $webPageArea: String) {
  visionProfilePhotoList(pcursor: $pcursor, userId: $userId, page: $page, webPageArea: $webPageArea) {
    result
    llsid
    webPageArea
    feeds {
      ...feedContent
      __typename
    }
    hostName
    pcursor
    __typename
  }
}
`

// Kuaishou lists a profile's newest videos through the GraphQL endpoint.
type Kuaishou struct {
	base
	endpoint string
}

func NewKuaishou(client *resty.Client, log *slog.Logger) *Kuaishou {
	return &Kuaishou{
		base:     base{client: client, log: log},
		endpoint: kuaishouAPI,
	}
}

func (k *Kuaishou) Name() string {
	return kuaishouName
}

type kuaishouRequest struct {
	OperationName string            `json:"operationName"`
	Variables     kuaishouVariables `json:"variables"`
	Query         string            `json:"query"`
}

type kuaishouVariables struct {
	UserID  string `json:"userId"`
	Pcursor string `json:"pcursor"`
	Page    string `json:"page"`
}

type kuaishouResponse struct {
	Data struct {
		VisionProfilePhotoList struct {
			Feeds *[]struct {
				Photo struct {
					ID        string `json:"id"`
					Caption   string `json:"caption"`
					Timestamp *int64 `json:"timestamp"`
				} `json:"photo"`
			} `json:"feeds"`
		} `json:"visionProfilePhotoList"`
	} `json:"data"`
}

func (k *Kuaishou) Fetch(ctx context.Context, req Request) (Result, error) {
	th, err := parseThresholds(kuaishouName, req)
	if err != nil {
		return Result{}, err
	}
	id, err := pathID(kuaishouName, req.URL, "/profile/")
	if err != nil {
		return Result{}, err
	}

	r := k.request(ctx, kuaishouReferer+id, req.Cookie).
		SetHeader("Content-Type", "application/json").
		SetBody(kuaishouRequest{
			OperationName: "visionProfilePhotoList",
			Variables:     kuaishouVariables{UserID: id, Page: "profile"},
			Query:         kuaishouQuery,
		})
	body, err := send(kuaishouName, r, http.MethodPost, k.endpoint)
	if err != nil {
		return Result{}, err
	}

	var resp kuaishouResponse
	if err := decode(kuaishouName, body, &resp); err != nil {
		return Result{}, err
	}
	feeds := resp.Data.VisionProfilePhotoList.Feeds
	if feeds == nil {
		k.log.Warn("response has no feeds", "platform", kuaishouName, "user", id)
		return collect(nil, th), nil
	}

	var entries []entry
	for _, f := range *feeds {
		p := f.Photo
		if !keep(k.log, kuaishouName, p.ID, p.Timestamp) {
			continue
		}
		entries = append(entries, entry{
			ID:    p.ID,
			Title: p.Caption,
			URL:   kuaishouVideoURL + p.ID,
			Date:  uint64(*p.Timestamp),
		})
	}
	return collect(entries, th), nil
}
