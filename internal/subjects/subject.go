package subjects

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
)

const (
	minSemester     = 1
	maxSemester     = 8
	maxNameLength   = 190
	maxCodeLength   = 32
	dimensionBranch = "branch"
	dimensionTerm   = "semester"
)

var allowedBranches = map[string]struct{}{
	"cse":   {},
	"ece":   {},
	"mech":  {},
	"civil": {},
	"ee":    {},
	"test":  {},
}

// Subject is a course offered in one branch and semester; (branch, semester, code) is unique.
type Subject struct {
	SubjectID   string  `gorm:"column:subject_id;primaryKey;size:190;not null" json:"id"`
	Name        string  `gorm:"column:name;size:190;not null" json:"name"`
	Code        string  `gorm:"column:code;size:32;not null;uniqueIndex:idx_subjects_branch_semester_code,priority:3" json:"code"`
	Branch      string  `gorm:"column:branch;size:32;not null;uniqueIndex:idx_subjects_branch_semester_code,priority:1" json:"branch"`
	Semester    int     `gorm:"column:semester;not null;uniqueIndex:idx_subjects_branch_semester_code,priority:2" json:"semester"`
	Credits     *int    `gorm:"column:credits" json:"credits"`
	Description *string `gorm:"column:description;type:text" json:"description"`
}

// TableName provides the explicit table binding for GORM.
func (Subject) TableName() string {
	return "subjects"
}

// ListFilter narrows subject listings; zero values mean "any".
type ListFilter struct {
	Branch   string
	Semester int
}

func (f ListFilter) cacheFilter() cache.Filter {
	dimensions := cache.Filter{dimensionBranch: f.Branch}
	if f.Semester > 0 {
		dimensions[dimensionTerm] = strconv.Itoa(f.Semester)
	}
	return dimensions
}

// CreateInput describes a new subject.
type CreateInput struct {
	Name        string
	Code        string
	Branch      string
	Semester    int
	Credits     *int
	Description *string
}

func normalizeFilter(filter ListFilter) (ListFilter, error) {
	normalized := ListFilter{
		Branch:   strings.ToLower(cache.FilterValue(filter.Branch)),
		Semester: filter.Semester,
	}
	if normalized.Semester != 0 && (normalized.Semester < minSemester || normalized.Semester > maxSemester) {
		return ListFilter{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
	}
	return normalized, nil
}

func validateCreateInput(input CreateInput) (Subject, error) {
	subject := Subject{
		Name:     strings.TrimSpace(input.Name),
		Code:     strings.ToUpper(strings.TrimSpace(input.Code)),
		Branch:   strings.ToLower(strings.TrimSpace(input.Branch)),
		Semester: input.Semester,
		Credits:  input.Credits,
	}
	if subject.Name == "" || subject.Code == "" || subject.Branch == "" || subject.Semester == 0 {
		return Subject{}, errors.New("missing required fields")
	}
	if len(subject.Name) > maxNameLength {
		return Subject{}, fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	if len(subject.Code) > maxCodeLength {
		return Subject{}, fmt.Errorf("code exceeds %d characters", maxCodeLength)
	}
	if _, ok := allowedBranches[subject.Branch]; !ok {
		return Subject{}, fmt.Errorf("unsupported branch %q", subject.Branch)
	}
	if subject.Semester < minSemester || subject.Semester > maxSemester {
		return Subject{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
	}
	if subject.Credits != nil && *subject.Credits < 0 {
		return Subject{}, errors.New("credits must not be negative")
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description != "" {
			subject.Description = &description
		}
	}
	return subject, nil
}
