package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/homework-notify/backend/internal/calendar"
)

// DefaultHeader opens the first message of a channel batch.
const DefaultHeader = "## Activities\n\n"

// Chunker renders calendar entries into one or more message bodies, each no
// longer than maxLen characters.
type Chunker struct {
	location    *time.Location
	baseSiteURL string
	maxLen      int
}

// NewChunker creates a chunker. Times render in loc; baseSiteURL may be
// empty to omit activity links.
func NewChunker(loc *time.Location, baseSiteURL string, maxLen int) *Chunker {
	return &Chunker{
		location:    loc,
		baseSiteURL: strings.TrimRight(baseSiteURL, "/"),
		maxLen:      maxLen,
	}
}

// Chunk greedily packs entry blocks into message bodies. The header appears
// only on the first chunk; completed chunks are trimmed of trailing
// whitespace. A single block is assumed to fit within maxLen on its own;
// an oversized block is a configuration or data error, not something to
// split.
func (c *Chunker) Chunk(entries []calendar.Entry, header string, now time.Time) []string {
	nowLocal := now.In(c.location)

	var chunks []string
	current := header

	for _, e := range entries {
		block := c.block(e, nowLocal)
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(block) > c.maxLen {
			chunks = append(chunks, strings.TrimRight(current, " \t\n"))
			current = block
		} else {
			current += block
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimRight(current, " \t\n"))
	}

	return chunks
}

// block renders one entry: linked title, end time, and remaining duration.
func (c *Chunker) block(e calendar.Entry, nowLocal time.Time) string {
	title := e.Title
	if title == "" {
		title = "Untitled"
	}

	var titleLine string
	if link := c.activityLink(e.Annotation); link != "" {
		titleLine = fmt.Sprintf("### [%s](<%s>)\n", title, link)
	} else {
		titleLine = fmt.Sprintf("### %s\n", title)
	}

	endLine := "All day"
	remaining := "N/A"
	if e.End != nil {
		endLocal := e.End.In(c.location)
		endLine = endLocal.Format("02/01/06 15:04")
		remaining = FormatRemaining(endLocal.Sub(nowLocal))
	}

	return titleLine + "📆 " + endLine + "\n⏳ " + remaining + "\n"
}

// activityLink builds "{base}/{group}/activity/{item}" from the annotation
// fingerprint. Empty when no base URL is configured or the annotation does
// not carry both ids.
func (c *Chunker) activityLink(annotation string) string {
	if c.baseSiteURL == "" {
		return ""
	}
	group, item, ok := strings.Cut(annotation, ",")
	group = strings.TrimSpace(group)
	item = strings.TrimSpace(item)
	if !ok || group == "" || item == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/activity/%s", c.baseSiteURL, group, item)
}

// FormatRemaining renders a duration as "{d} d, {h} hr, and {m} min" using
// whole-unit floor division. Non-positive durations render "Already ended".
func FormatRemaining(d time.Duration) string {
	total := int64(d.Seconds())
	if total <= 0 {
		return "Already ended"
	}

	days := total / 86400
	rem := total % 86400
	hours := rem / 3600
	minutes := (rem % 3600) / 60

	return fmt.Sprintf("%d d, %d hr, and %d min", days, hours, minutes)
}
