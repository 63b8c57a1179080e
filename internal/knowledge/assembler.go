package knowledge

import (
	"strings"

	"github.com/clavisedu/ragline/internal/model"
)

// Assembler renders the static knowledge relevant to a classified query
// into a bounded prompt fragment.
type Assembler struct {
	set      *Set
	maxChars int
}

func NewAssembler(set *Set, maxChars int) *Assembler {
	return &Assembler{set: set, maxChars: maxChars}
}

// BuildContext emits sections in fixed priority order: curriculum
// structure, then matching learning paths, then concept relationships,
// then teaching strategies. When the budget runs out the lowest-priority
// sections are the ones that get dropped.
func (a *Assembler) BuildContext(scope string, audience model.Audience) string {
	if a.set == nil {
		return ""
	}
	sections := []string{
		a.curriculumSection(audience),
		a.pathSection(scope, audience),
		a.conceptSection(),
		a.strategySection(audience),
	}

	var sb strings.Builder
	for _, section := range sections {
		if section == "" {
			continue
		}
		if a.maxChars > 0 && sb.Len()+len(section)+1 > a.maxChars {
			remaining := a.maxChars - sb.Len()
			if remaining > 80 {
				sb.WriteString(truncateSection(section, remaining))
			}
			break
		}
		sb.WriteString(section)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Assembler) curriculumSection(audience model.Audience) string {
	levels := a.set.levelsForAudience(audience)
	if len(levels) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Curriculum structure:\n")
	for _, level := range levels {
		sb.WriteString("- " + level.Name + ": " + level.Description)
		if len(level.Topics) > 0 {
			sb.WriteString(" Topics: " + strings.Join(level.Topics, ", ") + ".")
		}
		sb.WriteByte('\n')
	}
	for _, course := range a.set.Courses {
		if !levelIncluded(levels, course.Level) {
			continue
		}
		sb.WriteString("- Course " + course.Title + " (" + course.Level + "): " + course.Description + "\n")
	}
	return sb.String()
}

func (a *Assembler) pathSection(scope string, audience model.Audience) string {
	paths := a.set.pathsFor(scope, audience)
	if len(paths) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recommended learning paths:\n")
	for _, p := range paths {
		sb.WriteString("- " + p.Name + ": " + strings.Join(p.Steps, " -> ") + "\n")
	}
	return sb.String()
}

func (a *Assembler) conceptSection() string {
	if len(a.set.ConceptLinks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Concept prerequisites:\n")
	for _, link := range a.set.ConceptLinks {
		sb.WriteString("- " + link.Concept + " builds on " + link.Requires + "\n")
	}
	return sb.String()
}

func (a *Assembler) strategySection(audience model.Audience) string {
	strategies := a.set.strategiesFor(audience)
	if len(strategies) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Teaching guidance:\n")
	for _, st := range strategies {
		sb.WriteString("- " + st.Strategy + "\n")
	}
	return sb.String()
}

func levelIncluded(levels []CurriculumLevel, name string) bool {
	for _, level := range levels {
		if level.Name == name {
			return true
		}
	}
	return false
}

func truncateSection(section string, maxChars int) string {
	runes := []rune(section)
	if len(runes) <= maxChars {
		return section
	}
	return string(runes[:maxChars])
}
