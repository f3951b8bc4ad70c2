package crawler

import (
	"sjsage522/menucrawler/config"
	"sjsage522/menucrawler/helpers"
	"sjsage522/menucrawler/internal/browser"
	"sjsage522/menucrawler/logger"
	"sjsage522/menucrawler/services/cache"
)

// Dependencies are the services shared by every crawler of a run
type Dependencies struct {
	Launcher browser.Launcher
	Cache    cache.CacheService
	Operator Operator
	ErrorLog helpers.LoggerInterface
	// OpenSink returns the sink a platform's merchants are committed to
	OpenSink func(platform string) (Sink, error)
}

// OptionsFromConfig derives crawl options for p. Cities named in the
// configuration replace the platform's own list.
func OptionsFromConfig(cfg *config.Config, p *config.Platform) Options {
	cities := cfg.Cities
	if len(cities) == 0 {
		cities = p.Cities
	}
	return Options{
		Cities:           cities,
		Workers:          cfg.Workers,
		MerchantTimeout:  cfg.MerchantTimeout,
		CrawlTimeout:     cfg.CrawlTimeout,
		MaxAttempts:      cfg.MaxAttempts,
		MaxReconnects:    cfg.MaxReconnects,
		CaptchaBlockTime: cfg.CaptchaBlockTime,
		NavigateRate:     cfg.NavigateRate,
	}
}

// CreateCrawlers creates one crawler per selected platform. Each crawler
// gets its own browser session.
func CreateCrawlers(cfg *config.Config, platforms []*config.Platform, deps Dependencies) ([]Crawler, error) {
	log := logger.ForComponent("factory")

	var crawlers []Crawler
	for _, p := range platforms {
		sink, err := deps.OpenSink(p.Name)
		if err != nil {
			closeAll(crawlers)
			return nil, err
		}

		c, err := NewPlatformCrawler(p, deps.Launcher, sink, deps.Cache, deps.Operator, deps.ErrorLog, OptionsFromConfig(cfg, p))
		if err != nil {
			closeAll(crawlers)
			return nil, err
		}
		crawlers = append(crawlers, c)
	}

	log.Info().Int("count", len(crawlers)).Msg("Created crawlers")
	for i, c := range crawlers {
		log.Debug().Msgf("Crawler %d: %s", i, c.GetName())
	}
	return crawlers, nil
}

func closeAll(crawlers []Crawler) {
	for _, c := range crawlers {
		c.Close()
	}
}
