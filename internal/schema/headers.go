package schema

import (
	"strings"

	"golang.org/x/text/cases"
)

var headerIndex = func() map[string]string {
	m := make(map[string]string, 2*len(byName))
	for _, f := range Fields() {
		m[foldKey(f.Header)] = f.Name
		m[foldKey(f.Name)] = f.Name
	}
	return m
}()

// ResolveHeader maps a CSV column header to a registered field name.
// Both the ad-network export headers ("App Name") and the internal names
// ("mobile_app_name") are accepted, ignoring case and surrounding space.
func ResolveHeader(header string) (string, bool) {
	name, ok := headerIndex[foldKey(header)]
	return name, ok
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
