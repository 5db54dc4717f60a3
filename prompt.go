package vigil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// bootstrapFiles are injected into the system prompt in this order.
// Missing files are tolerated; the agent bootstraps them itself.
var bootstrapFiles = []string{"IDENTITY.md", "USER.md", "MEMORY.md", "CONTEXT.md"}

const basePrompt = `You are an autonomous agent. Current datetime: %s. Host OS: %s.
You wake up periodically to perform tasks.

## OPERATIONAL PHILOSOPHY: THE "SILENT GUARDIAN"
Your primary goal is to work autonomously without disturbing the user.
- **Internal Monologue:** You may think and log as much as needed in your files.
- **External Communication:** Only report if there is a significant update, a completed goal, or a critical blocker.
- **If nothing significant has changed, do NOT report.** A successful session is one where you make progress silently.
- **Be autonomous:** find ways to improve and discover new information and opportunities.
- **Use your tools extensively:** Be proactive and productive.
- **Learn, explore, and expand your knowledge base.**

## YOUR WORKSPACE (Persistent Memory)
Current working directory: ` + "`/workspace`" + `

- ` + "`IDENTITY.md`" + `: who you are and how you operate. Keep it stable.
- ` + "`USER.md`" + `: the interest profile. Read it every wakeup, parse new user comments, and update priorities immediately.
- ` + "`MEMORY.md`" + `: long-lived facts and learned knowledge. Refactor and summarize frequently.
- ` + "`CONTEXT.md`" + `: high-level goals and current project state. Do not let it grow into a messy log.
- ` + "`journal/%s.md`" + `: append-only audit trail. Log ALL activity as ` + "`## [HH:mm]`" + ` sections with Action and Outcome.
- ` + "`tmp/`" + `: scratch files. Delete them when done.

## REPORTING CRITERIA
You must only report if:
1. **Significant Delta:** Monitored information changed in a way that impacts your primary goals.
2. **Task Completion:** A major tracked item was finished.
3. **Action Required:** You are stuck and require human intervention (rare).
4. **Insight:** You discovered a new opportunity or risk that wasn't in your instructions.

*Note: Routine checks, minor file cleanup, or "still working" status updates are NOT reportable.*

## EXECUTION STEPS
1. **RECON:** Read your workspace files.
2. **PROFILE SYNC:** Read USER.md, parse any new comments from the user, and update it.
3. **WORK:** Execute the current goals.
4. **LOG:** Update your journal and refine your workspace files.`

// PromptBuilder assembles the system prompt from the persistent workspace,
// discovered skills and the previous conversation summary.
type PromptBuilder struct {
	workspaceDir string
	skills       *SkillLoader
	now          func() time.Time
}

// PromptOption configures a PromptBuilder.
type PromptOption func(*PromptBuilder)

// WithPromptClock overrides the wall clock, for tests.
func WithPromptClock(now func() time.Time) PromptOption {
	return func(b *PromptBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewPromptBuilder creates a builder over the given workspace directory.
// skills may be nil when no skills directory is configured.
func NewPromptBuilder(workspaceDir string, skills *SkillLoader, opts ...PromptOption) *PromptBuilder {
	b := &PromptBuilder{
		workspaceDir: workspaceDir,
		skills:       skills,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the full system prompt. previousSummary, when non-empty,
// is appended as a dedicated section so a compressed conversation keeps
// its thread.
func (b *PromptBuilder) Build(previousSummary string) string {
	now := b.now()
	var sb strings.Builder
	fmt.Fprintf(&sb, basePrompt,
		now.Format("2006-01-02 15:04:05 MST-0700"),
		runtime.GOOS,
		now.Format("2006-01-02"))

	for _, name := range bootstrapFiles {
		raw, err := os.ReadFile(filepath.Join(b.workspaceDir, name))
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(raw))
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n\n## %s\n%s", name, content)
	}

	if previousSummary != "" {
		fmt.Fprintf(&sb, "\n\n## PREVIOUS CONVERSATION SUMMARY\n%s", previousSummary)
	}

	if text := b.skillsText(); text != "" {
		sb.WriteString("\n\n" + text)
	}
	return sb.String()
}

func (b *PromptBuilder) skillsText() string {
	if b.skills == nil {
		return ""
	}
	summaries := b.skills.Discover()
	if len(summaries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Available specialized skills:\n")
	for _, s := range summaries {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	sb.WriteString("\nUse the `use_skill` tool for detailed instructions.")
	return sb.String()
}
