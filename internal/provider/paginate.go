package provider

import (
	"context"
	"log/slog"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// PageObserver is notified after each fetched page with the page number and the
// number of policies collected so far.
type PageObserver func(page, items int)

// Paginate collects every policy visible to p by requesting pages of perPage items.
// When a page carries a nav block its next link decides whether another page follows,
// since the server may cap per_page below what was asked. Without nav a short page
// ends the listing. An empty page always ends it. Either the complete ordered sequence
// or an error is returned.
func Paginate(ctx context.Context, p Provider, perPage int, filters map[string]string, observe PageObserver) ([]models.Policy, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "provider"))

	var out []models.Policy
	for page := 1; ; page++ {
		res, err := p.ListPolicies(ctx, models.PageRequest{Page: page, PerPage: perPage, Filters: filters})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		logger.Log(ctx, slog.LevelDebug, "fetched policy page",
			slog.Int("page", page),
			slog.Int("items", len(res.Items)),
			slog.Int("total", len(out)),
		)
		if observe != nil {
			observe(page, len(out))
		}

		if len(res.Items) == 0 {
			break
		}
		if res.Nav != nil {
			if !res.HasNext() {
				break
			}
			continue
		}
		if len(res.Items) < perPage {
			break
		}
	}
	return out, nil
}
