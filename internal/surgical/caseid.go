package surgical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const caseIDPrefix = "AUT"

// caseIDGenerator hands out AUT-<year>-<seq> identifiers from a per-year
// counter. Callers must serialize access; the store does so under its write
// lock.
type caseIDGenerator struct {
	last map[int]int
}

func newCaseIDGenerator() *caseIDGenerator {
	return &caseIDGenerator{last: map[int]int{}}
}

// observe raises the counter for the year encoded in id, if any.
func (g *caseIDGenerator) observe(id string) {
	year, seq, ok := parseCaseID(id)
	if !ok {
		return
	}
	if seq > g.last[year] {
		g.last[year] = seq
	}
}

func (g *caseIDGenerator) next(now time.Time) string {
	year := now.Year()
	g.last[year]++
	return FormatCaseID(year, g.last[year])
}

func FormatCaseID(year, seq int) string {
	return fmt.Sprintf("%s-%d-%03d", caseIDPrefix, year, seq)
}

func parseCaseID(id string) (year, seq int, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != caseIDPrefix {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0, 0, false
	}
	return year, seq, true
}
