// Package names fully-qualifies record names against their owning domain.
package names

import (
	"strconv"
	"strings"
)

// Canonicalize qualifies shortName against domainName. A name that already
// ends with "."+domainName, or that equals domainName exactly, is returned
// unchanged; anything else gets "."+domainName appended. The function is
// pure and idempotent.
func Canonicalize(domainName, shortName string) string {
	if shortName == domainName {
		return shortName
	}
	if strings.HasSuffix(shortName, "."+domainName) {
		return shortName
	}
	return shortName + "." + domainName
}

// Composite joins a fully-qualified record name and its external-store id
// into the graph key form used by Record nodes ("fqdn:id").
func Composite(name string, id int64) string {
	return name + ":" + strconv.FormatInt(id, 10)
}

// Split separates a composite graph record key into its name and
// external-store id parts. The id is the text after the last colon so
// record names containing colons stay intact.
func Split(composite string) (name string, id int64, ok bool) {
	idx := strings.LastIndex(composite, ":")
	if idx == -1 {
		return composite, 0, false
	}
	parsed, err := strconv.ParseInt(composite[idx+1:], 10, 64)
	if err != nil {
		return composite, 0, false
	}
	return composite[:idx], parsed, true
}
