package knowledge

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/clavisedu/ragline/internal/model"
)

//go:embed data/curriculum.json
var defaultDataFS embed.FS

type CurriculumLevel struct {
	Name        string   `json:"name"`
	Audiences   []string `json:"audiences"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
}

type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Level       string   `json:"level"`
	Description string   `json:"description"`
	Concepts    []string `json:"concepts"`
}

type LearningPath struct {
	Name     string   `json:"name"`
	Audience string   `json:"audience"`
	Scope    string   `json:"scope"`
	Steps    []string `json:"steps"`
}

type ConceptLink struct {
	Concept  string `json:"concept"`
	Requires string `json:"requires"`
}

type TeachingStrategy struct {
	Audience string `json:"audience"`
	Strategy string `json:"strategy"`
}

// Set is the process-wide static knowledge. It is loaded once at startup
// and never mutated afterwards, so unsynchronized concurrent reads are safe.
type Set struct {
	Levels       []CurriculumLevel  `json:"curriculum_levels"`
	Courses      []Course           `json:"courses"`
	Paths        []LearningPath     `json:"learning_paths"`
	ConceptLinks []ConceptLink      `json:"concept_links"`
	Strategies   []TeachingStrategy `json:"teaching_strategies"`
}

// Load reads the knowledge set from path, or the embedded default when
// path is empty.
func Load(path string) (*Set, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = defaultDataFS.ReadFile("data/curriculum.json")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge data: %w", err)
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode knowledge data: %w", err)
	}
	return &set, nil
}

func (s *Set) levelsForAudience(audience model.Audience) []CurriculumLevel {
	if audience == "" {
		return s.Levels
	}
	var matched []CurriculumLevel
	for _, level := range s.Levels {
		for _, a := range level.Audiences {
			if a == string(audience) {
				matched = append(matched, level)
				break
			}
		}
	}
	if len(matched) == 0 {
		return s.Levels
	}
	return matched
}

func (s *Set) pathsFor(scope string, audience model.Audience) []LearningPath {
	var matched []LearningPath
	for _, p := range s.Paths {
		if audience != "" && p.Audience != "" && p.Audience != string(audience) {
			continue
		}
		if scope != "" && scope != "general" && p.Scope != "" && p.Scope != scope {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}

func (s *Set) strategiesFor(audience model.Audience) []TeachingStrategy {
	var matched []TeachingStrategy
	for _, st := range s.Strategies {
		if audience != "" && st.Audience != "" && st.Audience != string(audience) {
			continue
		}
		matched = append(matched, st)
	}
	return matched
}
