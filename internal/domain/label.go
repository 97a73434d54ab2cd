package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Label is the category a labeler assigns to a sample.
type Label string

const (
	LabelUnset                   Label = ""
	LabelPolicy                  Label = "policy"
	LabelAdministrativeProcedure Label = "administrative_procedure"
	LabelTerminology             Label = "terminology"
	LabelNotApplicable           Label = "not_applicable"
)

// Labels lists the selectable categories in display order. LabelUnset is not included.
var Labels = []Label{
	LabelPolicy,
	LabelAdministrativeProcedure,
	LabelTerminology,
	LabelNotApplicable,
}

var labelDisplayNames = map[Label]string{
	LabelUnset:                   "Not selected",
	LabelPolicy:                  "Policy",
	LabelAdministrativeProcedure: "Administrative procedure",
	LabelTerminology:             "Terminology",
	LabelNotApplicable:           "Not applicable (X)",
}

// Aliases accepted when reading labels written by hand or by earlier
// versions of the tool, which stored the Korean display strings.
var labelAliases = map[string]Label{
	"":                         LabelUnset,
	"unset":                    LabelUnset,
	"none":                     LabelUnset,
	"not selected":             LabelUnset,
	"선택되지 않음":                  LabelUnset,
	"policy":                   LabelPolicy,
	"정책":                       LabelPolicy,
	"administrative_procedure": LabelAdministrativeProcedure,
	"administrative procedure": LabelAdministrativeProcedure,
	"procedure":                LabelAdministrativeProcedure,
	"행정 절차":                    LabelAdministrativeProcedure,
	"행정절차":                     LabelAdministrativeProcedure,
	"terminology":              LabelTerminology,
	"term":                     LabelTerminology,
	"전문용어":                     LabelTerminology,
	"전문 용어":                    LabelTerminology,
	"not_applicable":           LabelNotApplicable,
	"not applicable":           LabelNotApplicable,
	"not applicable (x)":       LabelNotApplicable,
	"n/a":                      LabelNotApplicable,
	"x":                        LabelNotApplicable,
}

// ParseLabel maps canonical ids, display names and legacy strings to a Label.
func ParseLabel(s string) (Label, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if l, ok := labelAliases[key]; ok {
		return l, nil
	}
	return LabelUnset, fmt.Errorf("unknown label %q", s)
}

func (l Label) IsUnset() bool {
	return l == LabelUnset
}

func (l Label) Valid() bool {
	_, ok := labelDisplayNames[l]
	return ok
}

func (l Label) DisplayName() string {
	if name, ok := labelDisplayNames[l]; ok {
		return name
	}
	return string(l)
}

func (l *Label) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseLabel(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LabelEntry is the current decision for one sample.
type LabelEntry struct {
	Label     Label  `json:"label"`
	LabeledBy string `json:"labeled_by"`
	Timestamp string `json:"timestamp"`
}

func (e *LabelEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Label     Label  `json:"label"`
		LabeledBy string `json:"labeled_by"`
		User      string `json:"user"` // key used by the first version of labels.json
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Label = raw.Label
	e.LabeledBy = raw.LabeledBy
	if e.LabeledBy == "" {
		e.LabeledBy = raw.User
	}
	e.Timestamp = raw.Timestamp
	return nil
}
