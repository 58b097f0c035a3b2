// Package poll runs one pass over the configured assets: it derives each
// asset's thresholds from its watermark history, fetches through the
// platform adapter, and advances the history.
package poll

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/source"
	"github.com/ppiankov/vidwatch/internal/store"
	"github.com/ppiankov/vidwatch/internal/watermark"
)

// Resolver picks the adapter and cookie for an asset. *source.Registry
// satisfies it.
type Resolver interface {
	Resolve(rawURL string) (source.Adapter, error)
	Cookie(a source.Adapter, cookies config.Cookies) string
}

// Recorder logs runs and their items. *store.Store satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, startedAt time.Time) (store.Run, error)
	FinishRun(ctx context.Context, run store.Run) error
	RecordItems(ctx context.Context, runID string, items []store.ItemInput) (int, error)
}

// AssetResult is the outcome for one asset. Err is set when the asset could
// not be polled; the run carries on regardless.
type AssetResult struct {
	Asset      config.Asset
	Platform   string
	Items      []source.Item
	NextOffset string
	Err        error
}

// Report is the outcome of a run, with results in config order.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []AssetResult
}

// Failures counts the assets that could not be polled.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

type Options struct {
	Resolver Resolver
	Recorder Recorder // nil disables recording
	Logger   *slog.Logger
	Workers  int // assets polled at once; <= 1 is sequential

	Today func() watermark.Date
	Now   func() time.Time
}

type Runner struct {
	resolver Resolver
	recorder Recorder
	log      *slog.Logger
	workers  int
	today    func() watermark.Date
	now      func() time.Time
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		resolver: opts.Resolver,
		recorder: opts.Recorder,
		log:      opts.Logger,
		workers:  max(opts.Workers, 1),
		today:    opts.Today,
		now:      opts.Now,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.today == nil {
		r.today = watermark.Today
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run polls every asset in cfg once. Offsets of assets that returned items
// are updated in place; the caller decides whether to save cfg. Run only
// returns an error when ctx ends before every asset was attempted.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (Report, error) {
	report := Report{
		StartedAt: r.now(),
		Results:   make([]AssetResult, len(cfg.Assets)),
	}
	today := r.today()

	if r.recorder != nil {
		run, err := r.recorder.StartRun(ctx, report.StartedAt)
		if err != nil {
			r.log.Warn("history log unavailable for this run", "err", err)
		} else {
			report.RunID = run.ID
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := range cfg.Assets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.pollAsset(ctx, &cfg.Assets[i], cfg.Cookies, today)
			r.record(ctx, report.RunID, res)
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.now()
	if ctxErr := ctx.Err(); ctxErr != nil {
		for i := range report.Results {
			if report.Results[i].Asset.Link == "" {
				report.Results[i] = AssetResult{Asset: cfg.Assets[i], Err: ctxErr}
			}
		}
	}

	if report.RunID != "" {
		err := r.recorder.FinishRun(context.WithoutCancel(ctx), store.Run{
			ID:         report.RunID,
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Assets:     len(report.Results),
			Failures:   report.Failures(),
		})
		if err != nil {
			r.log.Warn("could not close run in history log", "run", report.RunID, "err", err)
		}
	}

	return report, ctx.Err()
}

func (r *Runner) pollAsset(ctx context.Context, asset *config.Asset, cookies config.Cookies, today watermark.Date) AssetResult {
	log := r.log.With("asset", asset.DisplayName(), "link", asset.Link)

	show, _ := asset.Offsets.Oldest(true, today)
	isNew, _ := asset.Offsets.Newest(true, today)

	adapter, err := r.resolver.Resolve(asset.Link)
	if err != nil {
		log.Error("cannot poll asset", "err", err)
		return AssetResult{Asset: *asset, Err: err}
	}

	res, err := adapter.Fetch(ctx, source.Request{
		URL:         asset.Link,
		Cookie:      r.resolver.Cookie(adapter, cookies),
		ShowOffset:  show.Mark,
		IsNewOffset: isNew.Mark,
	})
	if err != nil {
		log.Error("poll failed", "platform", adapter.Name(), "err", err)
		return AssetResult{Asset: *asset, Platform: adapter.Name(), Err: err}
	}

	if len(res.Items) > 0 {
		asset.Offsets.Update(res.NextOffset, today)
	}
	log.Debug("polled", "platform", adapter.Name(), "items", len(res.Items), "next_offset", res.NextOffset)

	return AssetResult{
		Asset:      *asset,
		Platform:   adapter.Name(),
		Items:      res.Items,
		NextOffset: res.NextOffset,
	}
}

// record writes an asset's items to the history log. Failures only warn.
func (r *Runner) record(ctx context.Context, runID string, res AssetResult) {
	if r.recorder == nil || runID == "" || len(res.Items) == 0 {
		return
	}
	seen := r.now()
	in := make([]store.ItemInput, 0, len(res.Items))
	for _, it := range res.Items {
		in = append(in, store.ItemInput{
			AssetID:     res.Asset.ID(),
			AssetName:   res.Asset.DisplayName(),
			Platform:    res.Platform,
			ItemID:      it.ID,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt(),
			SeenAt:      seen,
		})
	}
	if _, err := r.recorder.RecordItems(ctx, runID, in); err != nil {
		r.log.Warn("could not record items", "asset", res.Asset.DisplayName(), "err", err)
	}
}
