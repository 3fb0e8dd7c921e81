package domain

import "net/url"

// Fingerprint builds the deterministic cache key for a request:
// the endpoint path plus the sorted query string. Parameters with empty
// values are omitted, so an unset optional filter and an absent one
// produce the same key.
func Fingerprint(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	filtered := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				filtered.Add(k, v)
			}
		}
	}
	q := filtered.Encode() // Encode sorts by key
	if q == "" {
		return path
	}
	return path + "?" + q
}
