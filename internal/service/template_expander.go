package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

// DecodeTemplates turns raw class rows into validated templates. A class whose
// weekly_slots cannot be decoded or fails validation is reported as an issue
// and left out; the remaining classes are returned in id order.
func DecodeTemplates(rows []models.ClassTemplateRow, validate *validator.Validate) ([]models.ClassTemplate, []models.TemplateIssue) {
	if validate == nil {
		validate = validator.New()
	}
	templates := make([]models.ClassTemplate, 0, len(rows))
	var issues []models.TemplateIssue
	for _, row := range rows {
		slots, err := decodeSlots(row, validate)
		if err != nil {
			issues = append(issues, models.TemplateIssue{Code: appErrors.ErrInvalidTemplate.Code, ClassID: row.ID, ClassName: row.Name, Reason: err.Error()})
			continue
		}
		templates = append(templates, models.ClassTemplate{
			ID:               row.ID,
			Name:             row.Name,
			DefaultTeacherID: row.DefaultTeacherID,
			DefaultRate:      row.DefaultRate,
			WeeklySlots:      slots,
		})
	}
	sort.SliceStable(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, issues
}

func decodeSlots(row models.ClassTemplateRow, validate *validator.Validate) ([]models.WeeklySlot, error) {
	raw := strings.TrimSpace(string(row.WeeklySlots))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var slots []models.WeeklySlot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("weekly_slots is not a list of slots: %v", err)
	}

	seen := make(map[string]struct{}, len(slots))
	for i := range slots {
		slot := &slots[i]
		if err := validate.Struct(slot); err != nil {
			return nil, fmt.Errorf("slot %d: %v", i, err)
		}
		start, err := orgtime.NormalizeClock(slot.Start)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %v", i, err)
		}
		end, err := orgtime.NormalizeClock(slot.End)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %v", i, err)
		}
		if end <= start {
			return nil, fmt.Errorf("slot %d: end %s is not after start %s", i, end, start)
		}
		key := fmt.Sprintf("%d|%s", slot.Weekday(), start)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("slot %d: duplicate start %s on day %d", i, start, slot.Weekday())
		}
		seen[key] = struct{}{}
		slot.Start, slot.End = start, end
		if slot.TeacherID != nil && strings.TrimSpace(*slot.TeacherID) == "" {
			slot.TeacherID = nil
		}
	}
	return slots, nil
}

// ExpandTemplates lists the sessions the weekly templates imply for month.
// Weekdays are evaluated in zone. Output is ordered by date, class id and
// start time, so identical input always yields identical output.
func ExpandTemplates(classes []models.ClassTemplate, month orgtime.Month, zone *orgtime.Zone) []models.ExpectedSession {
	ordered := make([]models.ClassTemplate, len(classes))
	copy(ordered, classes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var expected []models.ExpectedSession
	for _, day := range zone.Days(month) {
		date := day.Format(orgtime.DateLayout)
		weekday := int(day.Weekday())
		for _, class := range ordered {
			matches := make([]models.ExpectedSession, 0, 2)
			for _, slot := range class.WeeklySlots {
				if slot.Weekday() != weekday {
					continue
				}
				start, err := orgtime.NormalizeClock(slot.Start)
				if err != nil {
					continue
				}
				end, err := orgtime.NormalizeClock(slot.End)
				if err != nil {
					continue
				}
				matches = append(matches, models.ExpectedSession{
					ClassID:   class.ID,
					ClassName: class.Name,
					Date:      date,
					StartTime: start,
					EndTime:   end,
					TeacherID: resolveTeacher(slot, class),
				})
			}
			sort.SliceStable(matches, func(i, j int) bool { return matches[i].StartTime < matches[j].StartTime })
			expected = append(expected, matches...)
		}
	}
	return expected
}

// resolveTeacher picks the slot override, then the class default, then nil.
func resolveTeacher(slot models.WeeklySlot, class models.ClassTemplate) *string {
	for _, candidate := range []*string{slot.TeacherID, class.DefaultTeacherID} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			id := *candidate
			return &id
		}
	}
	return nil
}
