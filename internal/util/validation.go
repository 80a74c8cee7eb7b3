package util

import (
	"strconv"
	"strings"
)

// ParsePrincipalID parses a Telegram user id. Zero and negative values are
// rejected; negative ids belong to groups and channels.
func ParsePrincipalID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
