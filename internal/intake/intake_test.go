package intake

import (
	"strings"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Enrolment No":   "enrolment_no",
		"ENROLLMENT_NO":  "enrolment_no",
		"Roll No.":       "enrolment_no",
		"Father's Name":  "father_name",
		"Candidate Name": "name",
		"Question  Text": "question",
		"Marks Obtained": "marks_obt",
		"max.marks":      "max_marks",
		"Date of Birth":  "dob",
		"Centre":         "center",
		"answer":         "answer",
		" Exam Type ":    "exam_type",
	}
	for in, want := range cases {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	csvData := `Enrolment No,Candidate Name,Trade,Exam Type,Question,Part,Max Marks,Correct Answer,Answer,Marks Obtained
EN-100,Ravi Kumar,PLUMBER,primary,What is a union joint?,C,2,null,A detachable fitting,
EN-100,,,secondary,Water boils at 100 C.,F,1,true,true,1
,,,,skipped row without enrolment,,,,,
EN-101,Asha,WELDER,primary,Name a welding flux.,C,2,,borax,1.5
`
	rows, err := Parse(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.EnrolmentNo != "EN-100" || first.Name != "Ravi Kumar" || first.Trade != "PLUMBER" {
		t.Fatalf("identity fields wrong: %+v", first)
	}
	if first.Part != "C" || first.MaxMarks != 2 || first.CorrectAnswer != "null" {
		t.Fatalf("question fields wrong: %+v", first)
	}
	if first.MarksObt != 0 {
		t.Fatalf("empty marks cell should parse as zero, got %v", first.MarksObt)
	}

	if rows[1].ExamType != "secondary" || rows[1].MarksObt != 1 {
		t.Fatalf("second row wrong: %+v", rows[1])
	}
	if rows[2].MarksObt != 1.5 {
		t.Fatalf("fractional marks wrong: %+v", rows[2])
	}
}

func TestParseMissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("Enrolment No,Answer\nEN-1,x\n"))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	for _, col := range []string{"exam_type", "question"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error does not name missing column %s: %v", col, err)
		}
	}
}

func TestParseEmptyFile(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}
