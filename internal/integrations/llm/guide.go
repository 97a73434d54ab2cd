package llm

import (
	"fmt"
	"os"
	"strings"

	"labelbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// LabelGuide is the optional YAML file that steers suggestions. A phrase hit
// overrides the model.
type LabelGuide struct {
	Terms        []GuideTerm       `yaml:"terms"`
	Descriptions map[string]string `yaml:"descriptions,omitempty"`
}

type GuideTerm struct {
	Phrase string `yaml:"phrase"`
	Label  string `yaml:"label"`
}

func LoadLabelGuide(path string) (*LabelGuide, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label guide: %w", err)
	}
	var g LabelGuide
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse label guide yaml: %w", err)
	}
	return &g, nil
}

func loadGuideIfConfigured(cfg Config) (*LabelGuide, error) {
	if strings.TrimSpace(cfg.LLMLabelGuidePath) == "" {
		return nil, nil
	}
	return LoadLabelGuide(cfg.LLMLabelGuidePath)
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// phraseLabels resolves guide terms to labels, dropping terms whose label
// is unknown. Order follows the file.
func (g *LabelGuide) phraseLabels() ([]string, []domain.Label) {
	if g == nil {
		return nil, nil
	}
	var phrases []string
	var labels []domain.Label
	for _, term := range g.Terms {
		phrase := normalizeTextToken(term.Phrase)
		label, err := domain.ParseLabel(term.Label)
		if phrase == "" || err != nil || label.IsUnset() {
			continue
		}
		phrases = append(phrases, phrase)
		labels = append(labels, label)
	}
	return phrases, labels
}

// Description returns the guide text for a label, if any.
func (g *LabelGuide) Description(label domain.Label) string {
	if g == nil {
		return ""
	}
	for key, text := range g.Descriptions {
		if l, err := domain.ParseLabel(key); err == nil && l == label {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func applyGuideOverrides(items []Item, suggestions map[int]Suggestion, guide *LabelGuide) {
	phrases, labels := guide.phraseLabels()
	if len(phrases) == 0 {
		return
	}
	for _, item := range items {
		text := normalizeTextToken(item.text())
		for i, phrase := range phrases {
			if strings.Contains(text, phrase) {
				s := suggestions[item.Index]
				s.Label = labels[i]
				s.Confidence = max(s.Confidence, 0.99)
				s.FromGuide = true
				suggestions[item.Index] = s
				break
			}
		}
	}
}

// AppendGuideTerm adds phrase -> label to the guide file unless the phrase
// is already there. The file is created when missing.
func AppendGuideTerm(path, phrase string, label domain.Label) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || !label.Valid() || label.IsUnset() {
		return fmt.Errorf("phrase and a label are required")
	}

	var guide LabelGuide
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &guide); err != nil {
			return fmt.Errorf("parse existing label guide: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read label guide: %w", err)
	}

	normalized := normalizeTextToken(phrase)
	for _, t := range guide.Terms {
		if normalizeTextToken(t.Phrase) == normalized {
			return nil
		}
	}
	guide.Terms = append(guide.Terms, GuideTerm{Phrase: phrase, Label: string(label)})

	out, err := yaml.Marshal(&guide)
	if err != nil {
		return fmt.Errorf("marshal label guide: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}
