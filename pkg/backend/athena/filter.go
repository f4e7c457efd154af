package athena

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// compileDateFilter builds the WHERE-clause fragment restricting a query to
// the months intersecting r (inclusive), ANDed with the successful-call
// filter. Built once per run rather than per query: without this partition
// pruning, every query would scan the table's entire history.
func compileDateFilter(r backend.DateRange) string {
	months := make(map[string]bool)

	start := r.Start
	end := r.End
	for cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		months[fmt.Sprintf("(year = '%04d' and month = '%02d')", cur.Year(), int(cur.Month()))] = true
	}

	ordered := make([]string, 0, len(months))
	for m := range months {
		ordered = append(ordered, m)
	}

	return fmt.Sprintf("((%s) and errorcode IS NULL)", strings.Join(ordered, " or "))
}
