package models

import "time"

// FlowStep is one position in a flow. Reviewers, when set, replaces the step's
// default roster for this flow only.
type FlowStep struct {
	StepID    string      `json:"step_id"             validate:"required"`
	Reviewers *Assignment `json:"reviewers,omitempty"`
}

// EffectiveAssignment returns the roster that authorises reviews of step
// within this flow.
func (fs FlowStep) EffectiveAssignment(step *Step) Assignment {
	if fs.Reviewers != nil {
		return *fs.Reviewers
	}

	return step.Assignment()
}

// Flow is an ordered pipeline of steps bound to one form template.
type Flow struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"                 validate:"required,max=255"`
	FormTemplateID string     `json:"form_template_id"     validate:"required"`
	Steps          []FlowStep `json:"steps"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

func (f *Flow) IsActive() bool {
	return f.DeletedAt == nil
}

// IndexOf returns the position of stepID in the flow, or -1.
func (f *Flow) IndexOf(stepID string) int {
	for i, fs := range f.Steps {
		if fs.StepID == stepID {
			return i
		}
	}

	return -1
}

// FirstStep returns the entry step of the flow.
func (f *Flow) FirstStep() (FlowStep, bool) {
	if len(f.Steps) == 0 {
		return FlowStep{}, false
	}

	return f.Steps[0], true
}

// NextStep returns the step that follows stepID. The second result is false
// when stepID is the last step. The third result is false when stepID is not
// part of the flow at all.
func (f *Flow) NextStep(stepID string) (FlowStep, bool, bool) {
	idx := f.IndexOf(stepID)
	if idx < 0 {
		return FlowStep{}, false, false
	}

	if idx+1 >= len(f.Steps) {
		return FlowStep{}, false, true
	}

	return f.Steps[idx+1], true, true
}

// StepIDs returns the ordered step identifiers.
func (f *Flow) StepIDs() []string {
	ids := make([]string, 0, len(f.Steps))
	for _, fs := range f.Steps {
		ids = append(ids, fs.StepID)
	}

	return ids
}
