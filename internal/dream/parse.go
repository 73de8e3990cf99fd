package dream

import "strings"

// UntitledDream is used when the generated text has no usable first line.
const UntitledDream = "Untitled Dream"

const consolidationPrefix = "CONSOLIDATION:"

// parseDream splits generated text into a title (the first non-blank
// line, without leading '#') and a narrative (everything after it, minus
// any CONSOLIDATION: lines).
func parseDream(text string) (title, narrative string) {
	lines := strings.Split(strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n"), "\n")

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i < len(lines) {
		title = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(lines[i]), "#"))
		i++
	}
	if title == "" {
		title = UntitledDream
	}

	var body []string
	for _, line := range lines[i:] {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), consolidationPrefix) {
			continue
		}
		body = append(body, line)
	}
	return title, strings.TrimSpace(strings.Join(body, "\n"))
}

// cleanInsight reduces a distillation response to one line, dropping a
// CONSOLIDATION: label and surrounding quotes if the model added them.
func cleanInsight(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if strings.HasPrefix(strings.ToUpper(text), consolidationPrefix) {
		text = strings.TrimSpace(text[len(consolidationPrefix):])
	}
	return strings.Trim(text, "\"' ")
}
