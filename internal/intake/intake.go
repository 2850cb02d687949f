// Package intake parses bulk answer-sheet CSV files into rows the store can
// import.
package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/examdesk/examdesk/internal/model"
)

// requiredColumns must all be present (after normalization) in the header.
var requiredColumns = []string{"enrolment_no", "exam_type", "question", "answer"}

// columnAliases maps common header spellings to canonical column names.
var columnAliases = map[string]string{
	"enrollment_no":  "enrolment_no",
	"roll_no":        "enrolment_no",
	"candidate_name": "name",
	"fathers_name":   "father_name",
	"date_of_birth":  "dob",
	"centre":         "center",
	"exam":           "exam_type",
	"question_text":  "question",
	"correct":        "correct_answer",
	"max_mark":       "max_marks",
	"marks":          "marks_obt",
	"marks_obtained": "marks_obt",
}

// normalizeHeader canonicalizes one header cell: lowercase, apostrophes
// dropped, dots, spaces and dashes collapsed to underscores, then alias
// lookup.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Map(func(r rune) rune {
		switch r {
		case '\'':
			return -1
		case ' ', '.', '-':
			return '_'
		}
		return r
	}, h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	h = strings.Trim(h, "_")
	if canonical, ok := columnAliases[h]; ok {
		return canonical
	}
	return h
}

// Parse reads an answer-sheet CSV and returns its normalized rows. The
// header row is required; rows with no enrolment number are skipped.
func Parse(r io.Reader) ([]model.IntakeRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []model.IntakeRow
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if field(record, "enrolment_no") == "" {
			continue
		}

		rows = append(rows, model.IntakeRow{
			EnrolmentNo:   field(record, "enrolment_no"),
			Name:          field(record, "name"),
			Center:        field(record, "center"),
			Trade:         field(record, "trade"),
			FatherName:    field(record, "father_name"),
			DOB:           field(record, "dob"),
			District:      field(record, "district"),
			State:         field(record, "state"),
			Viva1:         atoi(field(record, "viva_1")),
			Viva2:         atoi(field(record, "viva_2")),
			Practical1:    atoi(field(record, "practical_1")),
			Practical2:    atoi(field(record, "practical_2")),
			ExamType:      field(record, "exam_type"),
			QuestionText:  field(record, "question"),
			CorrectAnswer: field(record, "correct_answer"),
			MaxMarks:      atof(field(record, "max_marks")),
			Part:          strings.ToUpper(field(record, "part")),
			Answer:        field(record, "answer"),
			MarksObt:      atof(field(record, "marks_obt")),
		})
	}
	return rows, nil
}

// atoi parses leniently: malformed numbers count as zero, matching how the
// sheets leave unfilled cells.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
