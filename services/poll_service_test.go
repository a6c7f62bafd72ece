package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"playforge/gateway"
	"playforge/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newPollService(gw gateway.Gateway) *PollService {
	svc := NewPollService(gw)
	svc.now = func() time.Time { return testNow }
	return svc
}

func validPoll(options ...string) CreatePollInput {
	return CreatePollInput{
		GameID:   "game-1",
		Question: "Which boss next?",
		ClosesAt: testNow.Add(24 * time.Hour),
		Options:  options,
	}
}

func optionTexts(p *models.PollWithOptions) []string {
	var out []string
	for _, o := range p.Options {
		out = append(out, o.OptionText)
	}
	return out
}

func TestCreatePollKeepsOptionOrder(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	created, err := svc.CreatePoll(ctx, validPoll(" Dragon ", "", "Lich", "   ", "Golem"))
	assert.NilError(t, err)
	assert.DeepEqual(t, optionTexts(created), []string{"Dragon", "Lich", "Golem"})
	assert.Assert(t, created.Poll.Active)
	assert.Equal(t, created.Status, models.PollStatusOpen)
	assert.Equal(t, created.TotalVotes, int64(0))

	options, err := svc.ListOptions(ctx, created.Poll.ID)
	assert.NilError(t, err)
	var texts []string
	for _, o := range options {
		texts = append(texts, o.OptionText)
		assert.Equal(t, o.Votes, int64(0))
	}
	assert.DeepEqual(t, texts, []string{"Dragon", "Lich", "Golem"})
}

func TestCreatePollValidation(t *testing.T) {
	cases := []struct {
		name  string
		input CreatePollInput
		field string
	}{
		{name: "missing game", input: CreatePollInput{Question: "Q", ClosesAt: testNow, Options: []string{"a", "b"}}, field: "game_id"},
		{name: "blank question", input: CreatePollInput{GameID: "g", Question: "  ", ClosesAt: testNow, Options: []string{"a", "b"}}, field: "question"},
		{name: "no closing date", input: CreatePollInput{GameID: "g", Question: "Q", Options: []string{"a", "b"}}, field: "closes_at"},
		{name: "one option", input: CreatePollInput{GameID: "g", Question: "Q", ClosesAt: testNow, Options: []string{"a"}}, field: "options"},
		{name: "blank options", input: CreatePollInput{GameID: "g", Question: "Q", ClosesAt: testNow, Options: []string{"a", " ", ""}}, field: "options"},
		{name: "one option left after trimming", input: CreatePollInput{GameID: "g", Question: "Q", ClosesAt: testNow, Options: []string{"", "  ", "Yes"}}, field: "options"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFaultyGateway(t)
			svc := newPollService(gw)

			_, err := svc.CreatePoll(context.Background(), tc.input)
			var verr *ValidationError
			assert.Assert(t, errors.As(err, &verr))
			assert.Equal(t, verr.Field, tc.field)

			assert.Equal(t, gw.callCount(), 0)
			assert.Equal(t, count(t, gw, models.TablePolls, nil), 0)
		})
	}
}

func TestCreatePollAcceptsLongText(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)

	in := validPoll(strings.Repeat("a", 400), "b")
	in.Question = strings.Repeat("Which boss should come next? ", 20)
	created, err := svc.CreatePoll(context.Background(), in)
	assert.NilError(t, err)
	assert.Equal(t, len(created.Options[0].OptionText), 400)
}

func TestCreatePollRollsBackOnOptionFailure(t *testing.T) {
	gw := newFaultyGateway(t)
	gw.failInsert = func(table string, n int) bool {
		return table == models.TablePollOptions && n == 2
	}
	svc := newPollService(gw)

	_, err := svc.CreatePoll(context.Background(), validPoll("a", "b", "c"))

	var pf *PartialFailure
	assert.Assert(t, errors.As(err, &pf))
	assert.Assert(t, pf.Compensated)
	assert.Equal(t, pf.Step, "option 2 of 3")
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, count(t, gw, models.TablePolls, nil), 0)
	assert.Equal(t, count(t, gw, models.TablePollOptions, nil), 0)
}

func TestCreatePollReportsFailedRollback(t *testing.T) {
	gw := newFaultyGateway(t)
	gw.failInsert = func(table string, n int) bool { return table == models.TablePollOptions }
	gw.failDelete = func(table string) bool { return table == models.TablePolls }
	svc := newPollService(gw)

	_, err := svc.CreatePoll(context.Background(), validPoll("a", "b"))

	var pf *PartialFailure
	assert.Assert(t, errors.As(err, &pf))
	assert.Assert(t, !pf.Compensated)
	assert.ErrorIs(t, pf.RollbackErr, errInjected)
	assert.Assert(t, is.Contains(err.Error(), "left behind"))

	assert.Equal(t, count(t, gw, models.TablePolls, nil), 1)
}

func TestCreatePollRollsBackWithCancelledContext(t *testing.T) {
	gw := newFaultyGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	gw.failInsert = func(table string, n int) bool {
		if table == models.TablePollOptions {
			cancel()
			return true
		}
		return false
	}
	svc := newPollService(gw)

	_, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	var pf *PartialFailure
	assert.Assert(t, errors.As(err, &pf))
	assert.Assert(t, pf.Compensated)
	assert.Equal(t, count(t, gw, models.TablePolls, nil), 0)
}

func TestToggleActiveIsAnInvolution(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	created, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)
	id := created.Poll.ID

	closed, err := svc.ToggleActive(ctx, id, true)
	assert.NilError(t, err)
	assert.Assert(t, !closed.Active)
	assert.Equal(t, closed.Status(testNow), models.PollStatusClosed)

	reopened, err := svc.ToggleActive(ctx, id, closed.Active)
	assert.NilError(t, err)
	assert.Assert(t, reopened.Active)
	assert.Equal(t, reopened.Question, created.Poll.Question)

	_, err = svc.ToggleActive(ctx, "missing", true)
	assert.Assert(t, gateway.IsNotFound(err))
}

func TestExpiryLeavesActiveFlag(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	in := validPoll("a", "b")
	in.ClosesAt = testNow.Add(-time.Minute)
	created, err := svc.CreatePoll(ctx, in)
	assert.NilError(t, err)
	assert.Assert(t, created.Expired)
	assert.Equal(t, created.Status, models.PollStatusExpiredOpen)

	stored, err := svc.GetPoll(ctx, created.Poll.ID)
	assert.NilError(t, err)
	assert.Assert(t, stored.Active)

	// Exactly at the closing time the poll counts as expired.
	assert.Assert(t, stored.Expired(stored.ClosesAt))
	assert.Assert(t, !stored.Expired(stored.ClosesAt.Add(-time.Second)))
}

func TestListPollsNewestFirstWithVotes(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	older, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)
	time.Sleep(2 * time.Millisecond)
	newer, err := svc.CreatePoll(ctx, validPoll("c", "d"))
	assert.NilError(t, err)

	other := validPoll("x", "y")
	other.GameID = "game-2"
	_, err = svc.CreatePoll(ctx, other)
	assert.NilError(t, err)

	options, err := svc.ListOptions(ctx, older.Poll.ID)
	assert.NilError(t, err)
	_, err = gw.Update(ctx, models.TablePollOptions, options[0].ID, gateway.Row{"votes": 3})
	assert.NilError(t, err)
	_, err = gw.Update(ctx, models.TablePollOptions, options[1].ID, gateway.Row{"votes": 4})
	assert.NilError(t, err)

	polls, err := svc.ListPolls(ctx, "game-1")
	assert.NilError(t, err)
	assert.Equal(t, len(polls), 2)
	assert.Equal(t, polls[0].Poll.ID, newer.Poll.ID)
	assert.Equal(t, polls[1].Poll.ID, older.Poll.ID)
	assert.Equal(t, polls[1].TotalVotes, int64(7))
	assert.Equal(t, polls[1].Options[0].OptionText, "a")
}

func TestDeletePollRemovesOptions(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	created, err := svc.CreatePoll(ctx, validPoll("a", "b", "c"))
	assert.NilError(t, err)

	assert.NilError(t, svc.DeletePoll(ctx, created.Poll.ID))
	assert.Equal(t, count(t, gw, models.TablePollOptions, nil), 0)

	err = svc.DeletePoll(ctx, created.Poll.ID)
	assert.Assert(t, gateway.IsNotFound(err))
}

func TestFindOrphans(t *testing.T) {
	gw := newFaultyGateway(t)
	svc := newPollService(gw)
	ctx := context.Background()

	_, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)

	orphan, err := gw.Insert(ctx, models.TablePolls, gateway.Row{
		"game_id":   "game-1",
		"question":  "Half written",
		"closes_at": testNow,
		"active":    true,
	})
	assert.NilError(t, err)

	found, err := svc.FindOrphans(ctx, time.Now().Add(time.Minute))
	assert.NilError(t, err)
	assert.Equal(t, len(found), 1)
	assert.Equal(t, found[0].ID, orphan["id"])

	found, err = svc.FindOrphans(ctx, time.Now().Add(-time.Hour))
	assert.NilError(t, err)
	assert.Equal(t, len(found), 0)
}
