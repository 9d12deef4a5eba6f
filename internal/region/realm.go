package region

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrBadRealmReference is returned when a realm index entry cannot be decoded into an id.
var ErrBadRealmReference = errors.New("bad realm reference")

const realmPathPrefix = "/data/wow/connected-realm/"

// Realm is one unit of work: a realm id within a region.
type Realm struct {
	ID     int
	Region Region
}

// ParseRealmID extracts the trailing numeric id from a realm reference such as
// https://eu.api.blizzard.com/data/wow/connected-realm/1234?namespace=dynamic-eu.
// A namespace query parameter, when present, must match the region.
func ParseRealmID(href string, r Region) (int, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrBadRealmReference, href, err)
	}

	if !strings.HasPrefix(u.Path, realmPathPrefix) {
		return 0, fmt.Errorf("%w: %q: unexpected path", ErrBadRealmReference, href)
	}
	tail := strings.TrimSuffix(strings.TrimPrefix(u.Path, realmPathPrefix), "/")
	if tail == "" || strings.Contains(tail, "/") {
		return 0, fmt.Errorf("%w: %q: no trailing id", ErrBadRealmReference, href)
	}

	id, err := strconv.Atoi(tail)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q: id %q is not a positive integer", ErrBadRealmReference, href, tail)
	}

	if ns := u.Query().Get("namespace"); ns != "" && ns != r.Namespace() {
		return 0, fmt.Errorf("%w: %q: namespace %q does not match region %s",
			ErrBadRealmReference, href, ns, r.Type)
	}

	return id, nil
}
