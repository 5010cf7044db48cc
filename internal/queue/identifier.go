package queue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"steamfetch/internal/faults"
)

var (
	numericIDPattern = regexp.MustCompile(`^\d+$`)
	storeURLPattern  = regexp.MustCompile(`store\.steampowered\.com/app/(\d+)`)
)

// ParseAppID normalizes a user-supplied identifier to a numeric Steam app
// id. Accepted forms are a bare number and a store page URL.
func ParseAppID(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, faults.New(faults.InvalidIdentifier, "parse identifier", "empty identifier")
	}

	if numericIDPattern.MatchString(trimmed) {
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil || id <= 0 {
			return 0, faults.New(faults.InvalidIdentifier, "parse identifier",
				fmt.Sprintf("app id out of range: %s", trimmed))
		}
		return id, nil
	}

	if match := storeURLPattern.FindStringSubmatch(trimmed); match != nil {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || id <= 0 {
			return 0, faults.New(faults.InvalidIdentifier, "parse identifier",
				fmt.Sprintf("app id out of range in URL: %s", trimmed))
		}
		return id, nil
	}

	return 0, faults.New(faults.InvalidIdentifier, "parse identifier",
		fmt.Sprintf("not a numeric app id or store URL: %s", trimmed))
}
