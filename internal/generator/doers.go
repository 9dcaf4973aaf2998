package generator

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/config"
	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
)

// doerPool shares one fetch client per distinct proxy so modules behind the
// same proxy reuse connections and DNS cache entries.
type doerPool struct {
	cfg    config.Config
	build  DoerFactory
	logger *zap.Logger
	doers  map[string]fetch.Doer
}

func newDoerPool(cfg config.Config, build DoerFactory, logger *zap.Logger) *doerPool {
	return &doerPool{cfg: cfg, build: build, logger: logger, doers: make(map[string]fetch.Doer)}
}

func (p *doerPool) get(proxy *config.ProxyConfig) (fetch.Doer, error) {
	key := ""
	if proxy != nil && proxy.URL != "" {
		key = proxy.URL + "\x00" + proxy.Username + "\x00" + proxy.Password
	}
	if d, ok := p.doers[key]; ok {
		return d, nil
	}
	d, err := p.build(p.cfg.FetchConfig(proxy), p.logger)
	if err != nil {
		return nil, err
	}
	p.doers[key] = d
	return d, nil
}
