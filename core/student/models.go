package student

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
)

const (
	SexMale   = "M"
	SexFemale = "F"

	MinGradeLevel = 7
	MaxGradeLevel = 12
)

type Student struct {
	ID              string      `json:"id"`
	LRN             string      `json:"lrn"` // learner reference number
	FirstName       string      `json:"first_name"`
	MiddleName      string      `json:"middle_name"`
	LastName        string      `json:"last_name"`
	Sex             string      `json:"sex"`
	BirthDate       null.Time   `json:"birth_date"`
	GradeLevel      int         `json:"grade_level"`
	Section         string      `json:"section"`
	AdviserID       null.String `json:"adviser_id"`
	GuardianName    string      `json:"guardian_name"`
	GuardianContact string      `json:"guardian_contact"`
	Address         string      `json:"address"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

// FullName returns "Last, First M."
func (s Student) FullName() string {
	var b strings.Builder
	b.WriteString(s.LastName)
	b.WriteString(", ")
	b.WriteString(s.FirstName)
	if mn := strings.TrimSpace(s.MiddleName); mn != "" {
		b.WriteString(" ")
		b.WriteString(strings.ToUpper(string([]rune(mn)[0])))
		b.WriteString(".")
	}
	return b.String()
}

// GradeAndSection returns e.g. "Grade 8 - Sampaguita".
func (s Student) GradeAndSection() string {
	g := "Grade " + strconv.Itoa(s.GradeLevel)
	if s.Section != "" {
		g += " - " + s.Section
	}
	return g
}

// NewStudent contains information needed to register a Student.
type NewStudent struct {
	LRN             string      `json:"lrn" validate:"required,lrn"`
	FirstName       string      `json:"first_name" validate:"required,max=100"`
	MiddleName      string      `json:"middle_name" validate:"max=100"`
	LastName        string      `json:"last_name" validate:"required,max=100"`
	Sex             string      `json:"sex" validate:"required,oneof=M F"`
	BirthDate       null.Time   `json:"birth_date"`
	GradeLevel      int         `json:"grade_level" validate:"required,min=7,max=12"`
	Section         string      `json:"section" validate:"max=100"`
	AdviserID       null.String `json:"adviser_id"`
	GuardianName    string      `json:"guardian_name" validate:"max=200"`
	GuardianContact string      `json:"guardian_contact" validate:"max=50"`
	Address         string      `json:"address" validate:"max=255"`
}

func (ns *NewStudent) clean() {
	ns.LRN = core.CleanString(ns.LRN)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.MiddleName = core.CleanString(ns.MiddleName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Sex = strings.ToUpper(core.CleanString(ns.Sex))
	ns.Section = core.CleanString(ns.Section)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianContact = core.CleanString(ns.GuardianContact)
	ns.Address = core.CleanString(ns.Address)
}

func (ns *NewStudent) Validate(validate *validator.Validate, svc Service) error {
	ns.clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ns.LRN)
}

// UpdateStudent defines what may be changed on an existing Student; empty fields are kept.
type UpdateStudent struct {
	LRN             string      `json:"lrn" validate:"omitempty,lrn"`
	FirstName       string      `json:"first_name" validate:"max=100"`
	MiddleName      *string     `json:"middle_name" validate:"omitempty,max=100"`
	LastName        string      `json:"last_name" validate:"max=100"`
	Sex             string      `json:"sex" validate:"omitempty,oneof=M F"`
	BirthDate       null.Time   `json:"birth_date"`
	GradeLevel      int         `json:"grade_level" validate:"omitempty,min=7,max=12"`
	Section         *string     `json:"section" validate:"omitempty,max=100"`
	AdviserID       null.String `json:"adviser_id"`
	GuardianName    *string     `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianContact *string     `json:"guardian_contact" validate:"omitempty,max=50"`
	Address         *string     `json:"address" validate:"omitempty,max=255"`
	IsActive        *bool       `json:"is_active"`
}

func (us *UpdateStudent) Validate(orig Student, validate *validator.Validate, svc Service) error {
	us.LRN = core.CleanString(us.LRN)
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.Sex = strings.ToUpper(core.CleanString(us.Sex))

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.LRN != "" && us.LRN != orig.LRN {
		return svc.CheckUniqueness(us.LRN, orig)
	}
	return nil
}

// apply merges the provided fields into s.
func (us UpdateStudent) apply(s Student) Student {
	if us.LRN != "" {
		s.LRN = us.LRN
	}
	if us.FirstName != "" {
		s.FirstName = us.FirstName
	}
	if us.MiddleName != nil {
		s.MiddleName = core.CleanString(*us.MiddleName)
	}
	if us.LastName != "" {
		s.LastName = us.LastName
	}
	if us.Sex != "" {
		s.Sex = us.Sex
	}
	if us.BirthDate.Valid {
		s.BirthDate = us.BirthDate
	}
	if us.GradeLevel != 0 {
		s.GradeLevel = us.GradeLevel
	}
	if us.Section != nil {
		s.Section = core.CleanString(*us.Section)
	}
	if us.AdviserID.Valid {
		s.AdviserID = us.AdviserID
	}
	if us.GuardianName != nil {
		s.GuardianName = core.CleanString(*us.GuardianName)
	}
	if us.GuardianContact != nil {
		s.GuardianContact = core.CleanString(*us.GuardianContact)
	}
	if us.Address != nil {
		s.Address = core.CleanString(*us.Address)
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	return s
}

type QueryFilter struct {
	Search     string `query:"search"`
	GradeLevel int    `query:"grade_level"`
	Section    string `query:"section"`
	AdviserID  string `query:"adviser_id"`
	IsActive   *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Section = core.CleanString(qf.Section)
	qf.AdviserID = core.CleanString(qf.AdviserID)
}

// OrderingFields maps API ordering fields to columns.
var OrderingFields = map[string]string{
	"lrn":         "lrn",
	"last_name":   "last_name",
	"first_name":  "first_name",
	"grade_level": "grade_level",
	"section":     "section",
	"created_at":  "created_at",
}
