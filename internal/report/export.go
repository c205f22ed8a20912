// Package report exports attempt results as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"quiz-attempt-engine/internal/domain"
)

const (
	resultsSheet   = "Results"
	questionsSheet = "Questions"
)

var resultHeaders = []string{
	"Attempt ID", "Quiz ID", "User ID", "Submitted At", "Total Score", "Max Score",
	"Percentage", "Correct", "Incorrect", "Pending Review", "Unanswered",
	"Requires Review", "Time Expired", "Forced Refresh",
}

var questionHeaders = []string{
	"Attempt ID", "Question ID", "Type", "Answered", "Score", "Max Points",
	"Fully Correct", "Requires Review", "Reason",
}

// Export writes an xlsx workbook with one row per attempt on the Results sheet and
// one row per graded question on the Questions sheet.
func Export(w io.Writer, submissions []domain.Submission) error {
	f, err := Workbook(submissions)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Workbook builds the export in memory.
func Workbook(submissions []domain.Submission) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(resultsSheet)
	if err != nil {
		return nil, fmt.Errorf("create results sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, fmt.Errorf("create questions sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	if err := writeRow(f, resultsSheet, 1, toCells(resultHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, questionsSheet, 1, toCells(questionHeaders)); err != nil {
		return nil, err
	}

	questionRow := 2
	for i, sub := range submissions {
		score := sub.Score
		row := []interface{}{
			sub.AttemptID,
			sub.QuizID,
			sub.UserID,
			sub.SubmittedAt.UTC().Format(time.RFC3339),
			score.TotalScore,
			score.MaxScore,
			score.Percentage,
			score.Correct,
			score.Incorrect,
			score.PendingReview,
			score.Unanswered,
			score.RequiresManualReview,
			sub.TimeExpired,
			sub.ForcedRefresh,
		}
		if err := writeRow(f, resultsSheet, i+2, row); err != nil {
			return nil, err
		}

		for _, q := range score.Questions {
			qrow := []interface{}{
				sub.AttemptID,
				q.QuestionID,
				string(q.Type),
				q.Answered,
				q.Score,
				q.MaxPoints,
				q.IsFullyCorrect,
				q.RequiresManualReview,
				q.Reason,
			}
			if err := writeRow(f, questionsSheet, questionRow, qrow); err != nil {
				return nil, err
			}
			questionRow++
		}
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}
