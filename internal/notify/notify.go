// Package notify sends the weekly digest to admins by SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
)

type Notifier interface {
	SendDigest(ctx context.Context, s *reporting.Summary) error
}

// Digest renders the short text sent for a weekly summary.
func Digest(s *reporting.Summary) string {
	st := s.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback week of %s: ", st.WeekStart.Format("Jan 2"))
	fmt.Fprintf(&b, "%d new, %d votes (+%d/-%d), %d comments. ",
		st.TotalFeedback, st.TotalVotes, st.Upvotes, st.Downvotes, st.TotalComments)
	fmt.Fprintf(&b, "Features %d, bugs %d, improvements %d, other %d. ",
		st.FeedbackByCategory.FeatureRequest, st.FeedbackByCategory.BugReport,
		st.FeedbackByCategory.Improvement, st.FeedbackByCategory.Other)
	fmt.Fprintf(&b, "Review %d, planned %d, done %d, rejected %d.",
		st.FeedbackByStatus.UnderReview, st.FeedbackByStatus.Planned,
		st.FeedbackByStatus.Completed, st.FeedbackByStatus.Rejected)
	return b.String()
}

// messageCreator is the part of the twilio client we use.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMS struct {
	api  messageCreator
	from string
	to   []string
}

func NewSMS(accountSID, authToken, from string, to []string) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMS{api: client.Api, from: from, to: to}
}

// SendDigest texts every recipient. A failure for one recipient does not
// stop the others; all failures are returned together.
func (s *SMS) SendDigest(ctx context.Context, summary *reporting.Summary) error {
	body := Digest(summary)
	var errs []error
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)

		resp, err := s.api.CreateMessage(params)
		if err != nil {
			log.WithError(err).WithField("to", to).Error("failed to send weekly digest")
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
			continue
		}
		entry := log.WithField("to", to)
		if resp != nil && resp.Sid != nil {
			entry = entry.WithField("sid", *resp.Sid)
		}
		entry.Info("weekly digest sent")
	}
	return errors.Join(errs...)
}

// Nop sends nothing.
type Nop struct{}

func (Nop) SendDigest(context.Context, *reporting.Summary) error { return nil }
