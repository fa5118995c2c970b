package publish

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

const titlePlaceholder = "{title}"

// RenderTitle expands an upload title template. The {title} placeholder takes
// the trimmed live title when one was probed, otherwise the task name. The
// whole string then goes through strftime, so templates like
// "{title} 录播 %Y-%m-%d" stamp the capture date.
func RenderTitle(template, liveTitle, taskName string, now time.Time) string {
	if strings.TrimSpace(template) == "" {
		template = titlePlaceholder
	}

	title := strings.TrimSpace(liveTitle)
	if title == "" {
		title = taskName
	}

	expanded := strings.ReplaceAll(template, titlePlaceholder, title)
	return strftime.Format(expanded, now)
}
