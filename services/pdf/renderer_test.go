package pdfsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/forms"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
)

func TestNewRenderer(t *testing.T) {
	conf := core.NewTestConfig()
	conf.School.Timezone = "Mars/Olympus_Mons"
	_, err := NewRenderer(conf)
	assert.Error(t, err)

	conf.School.Timezone = "Asia/Manila"
	r, err := NewRenderer(conf)
	require.NoError(t, err)
	at := time.Date(2024, time.June, 3, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, "June 4, 2024", r.(*renderer).date(at))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "Call slip issued", humanize("call_slip_issued"))
	assert.Equal(t, "", humanize(""))
	assert.Equal(t, "Female", sexLabel(student.SexFemale))
	assert.Equal(t, "x", sexLabel("x"))
	assert.Equal(t, "", userName(nil))
}

func TestRenderer(t *testing.T) {
	conf := core.NewTestConfig()
	r, err := NewRenderer(conf)
	require.NoError(t, err)

	now := time.Date(2024, time.June, 3, 2, 0, 0, 0, time.UTC)
	adviser := &user.User{Name: "Gng. Reyes"}
	stu := student.Student{
		LRN:          "100000000001",
		FirstName:    "Niño",
		LastName:     "Dela Cruz",
		Sex:          student.SexMale,
		GradeLevel:   8,
		Section:      "Rizal",
		BirthDate:    null.TimeFrom(time.Date(2010, 2, 1, 0, 0, 0, 0, time.UTC)),
		GuardianName: "Maria Dela Cruz",
		Address:      "Brgy. Malinis, Quezon City",
	}
	c := casefile.Case{
		CaseNo:   "2024-0001",
		Status:   casefile.StatusCallSlipIssued,
		Severity: casefile.SeverityMajor,
		Origin:   casefile.OriginEscalated,
		Summary:  "Repeated minor offenses (3)",
		OpenedAt: now,
	}
	slip := casefile.CallSlip{
		ScheduledAt: now.Add(24 * time.Hour),
		Venue:       "POD Office",
		Reason:      "Case 2024-0001: Repeated minor offenses (3)",
		Status:      casefile.SlipIssued,
		CreatedAt:   now,
	}
	lines := make([]forms.ReportLine, 0, 30)
	for i := 0; i < 30; i++ {
		lines = append(lines, forms.ReportLine{
			Report: incident.Report{
				OffenseCode: "MIN-01",
				Severity:    incident.SeverityMinor,
				IncidentAt:  now.Add(-time.Duration(i) * 24 * time.Hour),
				Narrative:   "Arrived after the flag ceremony, for the third time this week, without a note from home.",
				Status:      incident.StatusEscalated,
			},
			OffenseTitle: "Tardiness",
			ReporterName: "G. Santos",
		})
	}
	detail := forms.CaseDetail{Case: c, Student: stu, Adviser: adviser, Reports: lines, CallSlips: []casefile.CallSlip{slip}}

	tests := []struct {
		name   string
		render func(buf *bytes.Buffer) error
	}{
		{
			name: "call slip",
			render: func(buf *bytes.Buffer) error {
				return r.CallSlip(buf, forms.CallSlipData{
					School: conf.School, Slip: slip, Case: c, Student: stu,
					Issuer: user.User{Name: "Mr. Cruz"}, Adviser: adviser, GeneratedAt: now,
				})
			},
		},
		{
			name: "case record",
			render: func(buf *bytes.Buffer) error {
				return r.CaseRecord(buf, forms.CaseRecordData{School: conf.School, CaseDetail: detail, GeneratedAt: now})
			},
		},
		{
			name: "yakap",
			render: func(buf *bytes.Buffer) error {
				return r.Yakap(buf, forms.YakapData{School: conf.School, CaseDetail: detail, History: lines, GeneratedAt: now})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			require.NoError(t, tt.render(buf))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			assert.Contains(t, buf.String(), "%%EOF")
		})
	}
}
