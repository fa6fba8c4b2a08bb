package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver turns a data-file href found on a listing page into the URL a
// client should use to access the file.
type Resolver interface {
	Resolve(listing *url.URL, href string) (string, error)
}

// RelativeResolver resolves hrefs against the listing URL.
type RelativeResolver struct{}

// Resolve implements Resolver.
func (RelativeResolver) Resolve(listing *url.URL, href string) (string, error) {
	if listing == nil {
		return "", fmt.Errorf("%w: no listing url for %q", ErrUnresolvableLink, href)
	}
	resolved, err := resolveReference(listing, href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvableLink, err)
	}
	return resolved, nil
}

// OpenDAPResolver extracts a dataset identifier from a query parameter and
// appends it to a fixed access-protocol base URL, e.g.
// "catalog.html?dataset=Datasets/air/air.nc" becomes
// "https://psl.noaa.gov/thredds/dodsC/Datasets/air/air.nc".
type OpenDAPResolver struct {
	BaseURL string
	Param   string
}

// Resolve implements Resolver.
func (r OpenDAPResolver) Resolve(_ *url.URL, href string) (string, error) {
	param := r.Param
	if param == "" {
		param = "dataset"
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", ErrUnresolvableLink, href, err)
	}
	id := strings.TrimLeft(ref.Query().Get(param), "/")
	if id == "" {
		return "", fmt.Errorf("%w: %q has no %s parameter", ErrUnresolvableLink, href, param)
	}
	return strings.TrimRight(r.BaseURL, "/") + "/" + id, nil
}

// NewResolver builds the strategy named by cfg.Resolver.
func NewResolver(cfg Config) (Resolver, error) {
	switch cfg.Resolver {
	case ResolverRelative:
		return RelativeResolver{}, nil
	case ResolverOpenDAP:
		return OpenDAPResolver{BaseURL: cfg.OpenDAPBaseURL, Param: cfg.DatasetParam}, nil
	default:
		return nil, fmt.Errorf("unknown resolver %q", cfg.Resolver)
	}
}
