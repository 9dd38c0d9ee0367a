package models

import (
	"cmp"
	"strings"
)

// SortOrder is the direction of a listing.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ParseSortOrder maps a user supplied order; empty means descending.
func ParseSortOrder(value string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(value)) {
	case "", SortOrderDesc:
		return SortOrderDesc, true
	case SortOrderAsc:
		return SortOrderAsc, true
	default:
		return "", false
	}
}

// FormResponseSortField is the closed set of sortable form response fields.
type FormResponseSortField string

const (
	FormResponseSortCreatedAt FormResponseSortField = "created_at"
	FormResponseSortUpdatedAt FormResponseSortField = "updated_at"
	FormResponseSortStatus    FormResponseSortField = "status"
)

var formResponseComparators = map[FormResponseSortField]func(a, b *FormResponse) int{
	FormResponseSortCreatedAt: func(a, b *FormResponse) int { return a.CreatedAt.Compare(b.CreatedAt) },
	FormResponseSortUpdatedAt: func(a, b *FormResponse) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	FormResponseSortStatus:    func(a, b *FormResponse) int { return cmp.Compare(a.Status, b.Status) },
}

// ParseFormResponseSortField maps a user supplied key; empty means created_at.
func ParseFormResponseSortField(value string) (FormResponseSortField, bool) {
	if value == "" {
		return FormResponseSortCreatedAt, true
	}

	field := FormResponseSortField(value)
	_, ok := formResponseComparators[field]

	return field, ok
}

// Compare orders two responses by the field, breaking ties by ID so pages are
// deterministic.
func (f FormResponseSortField) Compare(a, b *FormResponse, order SortOrder) int {
	compare, ok := formResponseComparators[f]
	if !ok {
		compare = formResponseComparators[FormResponseSortCreatedAt]
	}

	return applyOrder(cmp.Or(compare(a, b), cmp.Compare(a.ID, b.ID)), order)
}

// StepSortField is the closed set of sortable step fields.
type StepSortField string

const (
	StepSortName      StepSortField = "name"
	StepSortCreatedAt StepSortField = "created_at"
)

var stepComparators = map[StepSortField]func(a, b *Step) int{
	StepSortName:      func(a, b *Step) int { return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	StepSortCreatedAt: func(a, b *Step) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

// ParseStepSortField maps a user supplied key; empty means name.
func ParseStepSortField(value string) (StepSortField, bool) {
	if value == "" {
		return StepSortName, true
	}

	field := StepSortField(value)
	_, ok := stepComparators[field]

	return field, ok
}

func (f StepSortField) Compare(a, b *Step, order SortOrder) int {
	compare, ok := stepComparators[f]
	if !ok {
		compare = stepComparators[StepSortName]
	}

	return applyOrder(cmp.Or(compare(a, b), cmp.Compare(a.ID, b.ID)), order)
}

func applyOrder(result int, order SortOrder) int {
	if order == SortOrderDesc {
		return -result
	}

	return result
}
