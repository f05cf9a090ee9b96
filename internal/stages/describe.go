package stages

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
)

const dateLayout = "2006-01-02"

var describedRe = regexp.MustCompile(`^The model version (\d+) was transitioned to (\S+) on (\d{4}-\d{2}-\d{2})$`)

// Describe renders the description recorded on a transitioned version.
func Describe(version int64, stage domain.Stage, at time.Time) string {
	return fmt.Sprintf("The model version %d was transitioned to %s on %s", version, stage, at.Format(dateLayout))
}

// Described is a parsed generated description.
type Described struct {
	Version int64
	Stage   string
	Date    string
}

// ParseDescription recognizes text produced by Describe.
func ParseDescription(text string) (Described, bool) {
	m := describedRe.FindStringSubmatch(text)
	if m == nil {
		return Described{}, false
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Described{}, false
	}
	return Described{Version: v, Stage: m[2], Date: m[3]}, true
}
