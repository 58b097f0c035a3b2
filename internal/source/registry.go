package source

import (
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/signing"
)

// Options configures a Registry.
type Options struct {
	Client    *resty.Client
	UserAgent string
	Logger    *slog.Logger

	// WBI signs bilibili queries. Nil means keys are fetched from the nav
	// endpoint through Client.
	WBI QuerySigner

	// LoadXBogus provides douyin's token signer. Nil means douyin fetches
	// fail with a SigningError.
	LoadXBogus func() (TokenSigner, error)
}

// Registry maps URL hosts to platform adapters. It is built once per process.
type Registry struct {
	byHost map[string]Adapter
}

func NewRegistry(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = NewClient(ClientOptions{UserAgent: opts.UserAgent, Logger: log})
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	wbi := opts.WBI
	if wbi == nil {
		wbi = signing.NewWBI(signing.NewNavKeySource(client, ""))
	}
	loadXBogus := opts.LoadXBogus
	if loadXBogus == nil {
		loadXBogus = func() (TokenSigner, error) {
			return nil, &signing.Error{Engine: "script", Err: errNoScript}
		}
	}

	return &Registry{byHost: map[string]Adapter{
		bilibiliHost: NewBilibili(client, wbi, log),
		kuaishouHost: NewKuaishou(client, log),
		ixiguaHost:   NewIxigua(client, log),
		douyinHost:   NewDouyin(client, ua, loadXBogus, log),
	}}
}

// Resolve returns the adapter for rawURL's host.
func (r *Registry) Resolve(rawURL string) (Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &UnsupportedHostError{Host: roughHost(rawURL)}
	}
	host := strings.ToLower(u.Hostname())
	if a, ok := r.byHost[host]; ok {
		return a, nil
	}
	return nil, &UnsupportedHostError{Host: host}
}

// Hosts lists the supported hosts in sorted order.
func (r *Registry) Hosts() []string {
	return slices.Sorted(maps.Keys(r.byHost))
}

// Cookie selects the cookie configured for a's platform.
func (r *Registry) Cookie(a Adapter, cookies config.Cookies) string {
	return cookies.For(a.Name())
}

// roughHost pulls the host out of a URL that url.Parse rejected.
func roughHost(raw string) string {
	_, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
