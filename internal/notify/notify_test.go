package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
)

type recordingAPI struct {
	sent []twilioApi.CreateMessageParams
	fail map[string]bool
}

func (r *recordingAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if r.fail[*params.To] {
		return nil, errors.New("undeliverable")
	}
	r.sent = append(r.sent, *params)
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func summary() *reporting.Summary {
	w := reporting.WeekOf(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	return reporting.Aggregate(w,
		[]models.Post{{Category: models.CategoryBugReport, Status: models.StatusPlanned}},
		[]models.Vote{{Type: models.VoteUp}},
		nil)
}

func TestDigest(t *testing.T) {
	text := Digest(summary())
	assert.Contains(t, text, "week of Jan 8")
	assert.Contains(t, text, "1 new, 1 votes (+1/-0), 0 comments")
	assert.Contains(t, text, "bugs 1")
	assert.Contains(t, text, "planned 1")
}

func TestSendDigestReachesEveryRecipient(t *testing.T) {
	api := &recordingAPI{fail: map[string]bool{"+15550002": true}}
	sms := &SMS{api: api, from: "+15550000", to: []string{"+15550001", "+15550002", "+15550003"}}

	err := sms.SendDigest(context.Background(), summary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+15550002")

	require.Len(t, api.sent, 2)
	assert.Equal(t, "+15550001", *api.sent[0].To)
	assert.Equal(t, "+15550000", *api.sent[0].From)
	assert.Equal(t, Digest(summary()), *api.sent[0].Body)
	assert.Equal(t, "+15550003", *api.sent[1].To)
}
