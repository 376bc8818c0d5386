package review

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const quickPrompt = `You are a pragmatic senior engineer doing a quick pass over a code snippet.

Focus on:
1. Obvious bugs and logic errors
2. Readability and naming
3. Error handling gaps
4. Anything that would block a merge

Be concise. Lead with the most important issue. If the code is fine, say so.
End with a line of the form "Confidence: NN/100".`

const securityPrompt = `You are a security reviewer auditing a code snippet for vulnerabilities.

Focus on:
1. Injection (SQL, command, template)
2. Unvalidated or unsanitized input
3. Secrets, credentials, and unsafe storage
4. AuthN/AuthZ mistakes and unsafe defaults
5. Unsafe deserialization and path traversal

Rate each issue by severity and explain the attack it enables.
End with a line of the form "Confidence: NN/100".`

const performancePrompt = `You are a performance engineer reviewing a code snippet for efficiency.

Focus on:
1. Algorithmic complexity and unnecessary work in loops
2. Allocation and copying overhead
3. Blocking calls and missed concurrency opportunities
4. N+1 queries and chatty I/O

Quantify the impact where you can and suggest a concrete fix for each issue.
End with a line of the form "Confidence: NN/100".`

const documentationPrompt = `You are a technical writer reviewing a code snippet for documentation quality.

Focus on:
1. Missing or misleading comments on exported/public surfaces
2. Names that don't explain intent
3. Undocumented invariants, units, and edge cases
4. Examples that would help a new reader

Suggest concrete wording, not just "add a comment".
End with a line of the form "Confidence: NN/100".`

var defaultPrompts = map[Category]string{
	CategoryQuick:         quickPrompt,
	CategorySecurity:      securityPrompt,
	CategoryPerformance:   performancePrompt,
	CategoryDocumentation: documentationPrompt,
}

// PromptLibrary serves the system prompt for each category. Operators can
// override a template by dropping <category>.txt into the configured
// directory; edits are picked up live.
type PromptLibrary struct {
	mu        sync.RWMutex
	overrides map[Category]string

	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPromptLibrary creates a library. dir may be empty, in which case only
// the built-in templates are served and no watcher is started.
func NewPromptLibrary(dir string) (*PromptLibrary, error) {
	l := &PromptLibrary{
		overrides: make(map[Category]string),
		dir:       dir,
		done:      make(chan struct{}),
	}
	if dir == "" {
		return l, nil
	}

	if err := l.loadOverrides(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch prompt dir %s: %w", dir, err)
	}
	l.watcher = watcher
	go l.watch()

	return l, nil
}

func (l *PromptLibrary) loadOverrides() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read prompt dir %s: %w", l.dir, err)
	}

	loaded := make(map[Category]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		cat := Category(name)
		if _, ok := defaultPrompts[cat]; !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			log.Printf("failed to read prompt override %s: %v", e.Name(), err)
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			loaded[cat] = text
		}
	}

	l.mu.Lock()
	l.overrides = loaded
	l.mu.Unlock()
	return nil
}

func (l *PromptLibrary) watch() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := l.loadOverrides(); err != nil {
					log.Printf("failed to reload prompt overrides: %v", err)
				} else {
					log.Printf("prompt overrides reloaded after change to %s", ev.Name)
				}
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("prompt watcher error: %v", err)
		case <-l.done:
			return
		}
	}
}

// System returns the system prompt for a category. Unknown categories get
// the quick template, matching ParseCategory's fallback.
func (l *PromptLibrary) System(cat Category) string {
	l.mu.RLock()
	override, ok := l.overrides[cat]
	l.mu.RUnlock()
	if ok {
		return override
	}
	if text, ok := defaultPrompts[cat]; ok {
		return text
	}
	return defaultPrompts[CategoryQuick]
}

// Close stops the watcher.
func (l *PromptLibrary) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// BuildUserPrompt embeds the code in a fenced block tagged with its
// language.
func BuildUserPrompt(code, language string) string {
	var b strings.Builder
	b.WriteString("Review the following code:\n\n")
	fmt.Fprintf(&b, "```%s\n", language)
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String()
}
