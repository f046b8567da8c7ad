// Package taskparser extracts Task values out of a Coordinator's free-form
// plan text. Extraction is a line-oriented state machine: an opening fence
// (optionally preceded by up to six '#' characters) starts a task block, a
// bare "@@@" closes it, and triple-backtick lines toggle a nested-code-block
// flag so fenced examples inside a task never contribute structure.
package taskparser

import (
	"bufio"
	"regexp"
	"strings"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/idutil"
)

var (
	openFenceRe  = regexp.MustCompile(`^#{0,6}\s*@@@tasks?\s*$`)
	titleRe      = regexp.MustCompile(`^#\s+(.+)$`)
	sectionRe    = regexp.MustCompile(`^##\s+(.+)$`)
	fenceTicksRe = regexp.MustCompile("^```")
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionObjective
	sectionScope
	sectionDoD
	sectionVerification
)

var sectionAliases = map[string]sectionKind{
	"objective": sectionObjective,
	"goal":      sectionObjective,
	"目标":        sectionObjective,
	"目的":        sectionObjective,

	"scope": sectionScope,
	"范围":    sectionScope,
	"作用域":   sectionScope,

	"definition of done":  sectionDoD,
	"acceptance criteria": sectionDoD,
	"done criteria":       sectionDoD,
	"完成标准":               sectionDoD,
	"验收标准":               sectionDoD,
	"完成条件":               sectionDoD,

	"verification": sectionVerification,
	"verify":       sectionVerification,
	"验证":           sectionVerification,
	"验证方法":         sectionVerification,
	"测试验证":         sectionVerification,
}

func aliasKind(header string) sectionKind {
	key := strings.ToLower(strings.TrimSpace(header))
	if kind, ok := sectionAliases[key]; ok {
		return kind
	}
	return sectionNone
}

// Parse extracts every Task encoded in input, binding each to workspaceID.
// An input with no task blocks, or whose blocks contain no valid titles,
// yields an empty, non-nil slice.
func Parse(input, workspaceID string) []*domain.Task {
	blocks := extractBlocks(input)

	var tasks []*domain.Task
	for _, block := range blocks {
		for _, sub := range splitByTitle(block) {
			if task := parseSubBlock(sub, workspaceID); task != nil {
				tasks = append(tasks, task)
			}
		}
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks
}

// extractBlocks returns the raw line-sets found between an opening
// @@@task(s) fence and its closing @@@, skipping anything outside a block.
func extractBlocks(input string) [][]string {
	var blocks [][]string
	var current []string
	inTaskBlock := false
	inNestedCodeBlock := false

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inTaskBlock {
			if openFenceRe.MatchString(trimmed) {
				inTaskBlock = true
				inNestedCodeBlock = false
				current = nil
			}
			continue
		}

		if !inNestedCodeBlock && trimmed == "@@@" {
			blocks = append(blocks, current)
			current = nil
			inTaskBlock = false
			continue
		}

		if fenceTicksRe.MatchString(trimmed) {
			inNestedCodeBlock = !inNestedCodeBlock
		}
		current = append(current, line)
	}

	if inTaskBlock && len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// splitByTitle divides a block into sub-blocks at each top-level `# ` title
// line found outside a nested code fence.
func splitByTitle(lines []string) [][]string {
	var subBlocks [][]string
	var current []string
	inNestedCodeBlock := false
	started := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fenceTicksRe.MatchString(trimmed) {
			inNestedCodeBlock = !inNestedCodeBlock
			current = append(current, line)
			continue
		}
		if !inNestedCodeBlock && titleRe.MatchString(trimmed) {
			if started {
				subBlocks = append(subBlocks, current)
			}
			current = nil
			started = true
		}
		current = append(current, line)
	}
	if started {
		subBlocks = append(subBlocks, current)
	}
	return subBlocks
}

func parseSubBlock(lines []string, workspaceID string) *domain.Task {
	var title string
	var objective, scope strings.Builder
	var acceptance, verification []string
	active := sectionNone
	inNestedCodeBlock := false
	foundTitle := false

	flushListLine := func(kind sectionKind, trimmed string) {
		if !strings.HasPrefix(trimmed, "-") {
			return
		}
		item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		switch kind {
		case sectionScope:
			if scope.Len() > 0 {
				scope.WriteByte('\n')
			}
			scope.WriteString(item)
		case sectionDoD:
			acceptance = append(acceptance, item)
		case sectionVerification:
			verification = append(verification, item)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if fenceTicksRe.MatchString(trimmed) {
			inNestedCodeBlock = !inNestedCodeBlock
			continue
		}
		if inNestedCodeBlock {
			continue
		}

		if !foundTitle {
			if m := titleRe.FindStringSubmatch(trimmed); m != nil {
				title = strings.TrimSpace(m[1])
				foundTitle = true
			}
			continue
		}

		if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
			active = aliasKind(m[1])
			continue
		}

		switch active {
		case sectionObjective:
			if trimmed != "" {
				if objective.Len() > 0 {
					objective.WriteByte('\n')
				}
				objective.WriteString(trimmed)
			}
		case sectionScope, sectionDoD, sectionVerification:
			flushListLine(active, trimmed)
		}
	}

	if !foundTitle || title == "" {
		return nil
	}

	now := time.Now().UTC()
	return &domain.Task{
		ID:                   idutil.New("task"),
		Title:                title,
		Objective:            objective.String(),
		Scope:                scope.String(),
		AcceptanceCriteria:   acceptance,
		VerificationCommands: verification,
		Status:               domain.TaskPending,
		WorkspaceID:          workspaceID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
