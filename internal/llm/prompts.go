package llm

import (
	"embed"
	"fmt"
	"strings"
	"time"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// clockFormat is the wall-clock stamp format substituted into every
// prompt at load time.
const clockFormat = "2006-01-02 15:04:05"

// LoadSystemPrompt reads the static prompt bundle for phase and stamps the
// current UTC wall clock into it, the file-embedded analogue of the
// original's prompt.py prose-as-data.
func LoadSystemPrompt(phase Phase, now time.Time) (string, error) {
	raw, err := promptFS.ReadFile(fmt.Sprintf("prompts/%s.txt", phase))
	if err != nil {
		return "", fmt.Errorf("load prompt for phase %s: %w", phase, err)
	}
	text := strings.ReplaceAll(string(raw), "{{now_utc}}", now.UTC().Format(clockFormat))
	return text, nil
}
