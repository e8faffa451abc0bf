package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteCSV renders the summary tables (totals, categories, statuses) as
// section,metric,count rows.
func WriteCSV(w io.Writer, s *Summary) error {
	st := s.Stats
	rows := [][]string{
		{"section", "metric", "count"},
		{"week", "Week Start", st.WeekStart.Format("2006-01-02")},
		{"week", "Week End", st.WeekEnd.Format("2006-01-02")},
		{"summary", "Total Feedback", strconv.Itoa(st.TotalFeedback)},
		{"summary", "Total Votes", strconv.Itoa(st.TotalVotes)},
		{"summary", "Total Comments", strconv.Itoa(st.TotalComments)},
		{"summary", "Upvotes", strconv.Itoa(st.Upvotes)},
		{"summary", "Downvotes", strconv.Itoa(st.Downvotes)},
		{"category", "Feature Requests", strconv.Itoa(st.FeedbackByCategory.FeatureRequest)},
		{"category", "Bug Reports", strconv.Itoa(st.FeedbackByCategory.BugReport)},
		{"category", "Improvements", strconv.Itoa(st.FeedbackByCategory.Improvement)},
		{"category", "Other", strconv.Itoa(st.FeedbackByCategory.Other)},
		{"status", "Under Review", strconv.Itoa(st.FeedbackByStatus.UnderReview)},
		{"status", "Planned", strconv.Itoa(st.FeedbackByStatus.Planned)},
		{"status", "Completed", strconv.Itoa(st.FeedbackByStatus.Completed)},
		{"status", "Rejected", strconv.Itoa(st.FeedbackByStatus.Rejected)},
	}
	if st.FeedbackByStatus.Unrecognized > 0 {
		rows = append(rows, []string{"status", "Unrecognized", strconv.Itoa(st.FeedbackByStatus.Unrecognized)})
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
