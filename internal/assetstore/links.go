package assetstore

import "strings"

// NormalizeLinkFormat rewrites a shared link so it serves the file content
// directly: dl and raw parameters are dropped and a single raw=1 is appended
// after the remaining parameters. The result is a fixed point. Fragments are
// preserved.
func NormalizeLinkFormat(link string) string {
	if link == "" {
		return ""
	}

	base, fragment := link, ""
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base, fragment = base[:i], base[i:]
	}

	path, query, hasQuery := strings.Cut(base, "?")
	var kept []string
	if hasQuery {
		for _, param := range strings.Split(query, "&") {
			switch {
			case param == "", param == "dl", strings.HasPrefix(param, "dl="):
				continue
			case param == "raw", strings.HasPrefix(param, "raw="):
				continue
			}
			kept = append(kept, param)
		}
	}
	kept = append(kept, "raw=1")
	return path + "?" + strings.Join(kept, "&") + fragment
}
