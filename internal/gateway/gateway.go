// internal/gateway/gateway.go
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/config"
	apihttp "shepherd/internal/pkg/httputil"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/telemetry"
)

// route sends every request under prefix to one backend.
type route struct {
	prefix  string
	backend string
}

func routes(urls config.ServiceURLs) []route {
	return []route{
		{"/api/members", urls.Membership},
		{"/api/households", urls.Membership},
		{"/api/services", urls.Records},
		{"/api/attendance", urls.Records},
		{"/api/giving", urls.Records},
		{"/api/reports", urls.Reports},
		{"/api/accounts", urls.Accounts},
	}
}

// Mount registers a reverse proxy for each API prefix on r. Paths are
// forwarded unchanged; the backends serve the full /api paths.
func Mount(r chi.Router, urls config.ServiceURLs) error {
	proxies := map[string]*httputil.ReverseProxy{}
	for _, rt := range routes(urls) {
		p, ok := proxies[rt.backend]
		if !ok {
			target, err := url.Parse(rt.backend)
			if err != nil || target.Host == "" {
				return fmt.Errorf("backend url %q for %s: invalid", rt.backend, rt.prefix)
			}
			p = newProxy(target)
			proxies[rt.backend] = p
		}
		r.Handle(rt.prefix, p)
		r.Handle(rt.prefix+"/*", p)
	}
	return nil
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	director := p.Director
	p.Director = func(r *http.Request) {
		director(r)
		telemetry.Inject(r.Context(), r)
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream unavailable", "backend", target.Host, "path", r.URL.Path, "err", err)
		apihttp.Error(w, http.StatusBadGateway, "upstream service unavailable")
	}
	return p
}
