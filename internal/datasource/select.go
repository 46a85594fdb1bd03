package datasource

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// MaxFilesLimit is the hard cap on the number of files one load considers.
const MaxFilesLimit = 2000

// Selection narrows a stage listing.
type Selection struct {
	// Files keeps only these paths, in this order. Missing paths are reported.
	Files []string
	// Pattern keeps paths matching this regexp (applied after Files).
	Pattern string
	// MaxFiles caps the result; 0 means MaxFilesLimit.
	MaxFiles int
}

// Select applies sel to listed and returns the files to load, sorted by path
// unless an explicit file list fixes the order. missing holds explicit paths
// absent from the listing.
func Select(listed []FileInfo, sel Selection) (files []FileInfo, missing []string, err error) {
	var re *regexp.Regexp
	if sel.Pattern != "" {
		re, err = regexp.Compile(sel.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("pattern: %w", err)
		}
	}
	limit := sel.MaxFiles
	if limit <= 0 || limit > MaxFilesLimit {
		limit = MaxFilesLimit
	}

	if len(sel.Files) > 0 {
		byPath := make(map[string]FileInfo, len(listed))
		for _, f := range listed {
			byPath[cleanPath(f.Path)] = f
		}
		seen := make(map[string]struct{}, len(sel.Files))
		for _, p := range sel.Files {
			p = cleanPath(p)
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			f, ok := byPath[p]
			if !ok {
				missing = append(missing, p)
				continue
			}
			files = append(files, f)
		}
	} else {
		files = make([]FileInfo, len(listed))
		copy(files, listed)
		SortByPath(files)
	}

	if re != nil {
		kept := files[:0]
		for _, f := range files {
			if re.MatchString(f.Path) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	if len(files) > limit {
		files = files[:limit]
	}
	return files, missing, nil
}

func cleanPath(p string) string {
	if strings.Contains(p, "://") {
		return p
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
