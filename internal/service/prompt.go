package service

import (
	"fmt"
	"strings"

	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/model"
)

// RetrievedPassage is a search result together with the stored excerpt
// that backs it, so the prompt can quote the source it cites.
type RetrievedPassage struct {
	model.SearchResult
	Excerpt string
}

type AssembleInput struct {
	SystemRole     string
	Tone           string
	DomainFragment string
	Sources        []RetrievedPassage
	History        []model.ChatMessage
	UserMessage    string
}

type AssembleOutput struct {
	Prompt string
	// Included lists the sources that made the budget cut; nothing else
	// may be referenced by the prompt.
	Included []RetrievedPassage
}

// PromptAssembler builds the bounded model prompt. Budget priority is
// fixed: system role and the user message are never truncated, the
// domain fragment is capped, sources are dropped from the least relevant
// end, history is windowed and dropped oldest-first.
type PromptAssembler struct {
	cfg config.PromptConfig
}

func NewPromptAssembler(cfg config.PromptConfig) *PromptAssembler {
	return &PromptAssembler{cfg: cfg}
}

func (p *PromptAssembler) Assemble(in AssembleInput) AssembleOutput {
	systemSection := strings.TrimSpace(in.SystemRole)
	if systemSection == "" {
		systemSection = defaultSystemRole
	}
	if in.Tone != "" {
		systemSection += "\nRespond in a " + in.Tone + " tone."
	}
	userSection := "User question: " + strings.TrimSpace(in.UserMessage)

	budget := p.cfg.MaxChars - len(systemSection) - len(userSection) - 8
	if budget < 0 {
		budget = 0
	}

	domainSection := ""
	if in.DomainFragment != "" {
		capped := in.DomainFragment
		domainCap := p.cfg.MaxChars / 4
		if len(capped) > domainCap {
			capped = capped[:domainCap]
		}
		if len(capped)+2 <= budget {
			domainSection = capped
			budget -= len(capped) + 2
		}
	}

	var sourceSections []string
	var included []RetrievedPassage
	for _, src := range in.Sources {
		section := renderSource(src, p.cfg.SourceChars)
		need := len(section) + 2
		if len(sourceSections) == 0 {
			// The first source also pays for the block framing.
			need += len(sourceBlockHeader) + len(sourceBlockFooter)
		}
		if need > budget {
			break
		}
		sourceSections = append(sourceSections, section)
		included = append(included, src)
		budget -= need
	}

	history := windowHistory(in.History, p.cfg.HistoryTurns)
	historySection := ""
	for len(history) > 0 {
		rendered := renderHistory(history)
		if len(rendered)+2 <= budget {
			historySection = rendered
			budget -= len(rendered) + 2
			break
		}
		history = history[1:]
	}

	var sb strings.Builder
	sb.WriteString(systemSection)
	if domainSection != "" {
		sb.WriteString("\n\n")
		sb.WriteString(domainSection)
	}
	if len(sourceSections) > 0 {
		sb.WriteString(sourceBlockHeader)
		sb.WriteString(strings.Join(sourceSections, "\n"))
		sb.WriteString(sourceBlockFooter)
	}
	if historySection != "" {
		sb.WriteString("\n\n")
		sb.WriteString(historySection)
	}
	sb.WriteString("\n\n")
	sb.WriteString(userSection)

	return AssembleOutput{Prompt: sb.String(), Included: included}
}

const defaultSystemRole = "You are a helpful learning assistant for an AI-education platform. " +
	"Answer accurately and concisely. If the provided sources do not cover the question, say so instead of inventing platform facts."

const (
	sourceBlockHeader = "\n\nRelevant platform content:\n"
	sourceBlockFooter = "\nAnswer using the sources above and cite them by their markers."
)

func renderSource(src RetrievedPassage, maxChars int) string {
	excerpt := strings.TrimSpace(src.Excerpt)
	if maxChars > 0 && len(excerpt) > maxChars {
		excerpt = excerpt[:maxChars]
	}
	return fmt.Sprintf("[%s: %s] %s", src.ContentType, src.Title, excerpt)
}

func windowHistory(history []model.ChatMessage, maxTurns int) []model.ChatMessage {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	return history[len(history)-maxTurns:]
}

func renderHistory(history []model.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, msg := range history {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
