package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"playforge/gateway"
	"playforge/models"
	"playforge/utils"
)

// MinPollOptions is the smallest number of non-blank options a poll needs.
const MinPollOptions = 2

// optionSpacing separates the created_at stamps of one poll's options so
// their oldest-first order survives stores with millisecond precision.
const optionSpacing = time.Millisecond

// CreatePollInput is a poll that has not been persisted yet.
type CreatePollInput struct {
	GameID   string    `json:"game_id"`
	Question string    `json:"question"`
	ClosesAt time.Time `json:"closes_at"`
	Options  []string  `json:"options"`
}

// Validate checks the draft and returns its cleaned options: trimmed, with
// blank entries dropped.
func (in CreatePollInput) Validate() ([]string, error) {
	if strings.TrimSpace(in.GameID) == "" {
		return nil, &ValidationError{Field: "game_id", Message: "game is required"}
	}
	if err := utils.ValidateText("question", strings.TrimSpace(in.Question)); err != nil {
		return nil, invalid("question", err)
	}
	if in.ClosesAt.IsZero() {
		return nil, &ValidationError{Field: "closes_at", Message: "closing date is required"}
	}

	options := utils.TrimNonEmpty(in.Options)
	if len(options) < MinPollOptions {
		return nil, &ValidationError{
			Field:   "options",
			Message: fmt.Sprintf("at least %d non-empty options are required", MinPollOptions),
		}
	}
	for _, o := range options {
		if err := utils.ValidateText("option", o); err != nil {
			return nil, invalid("options", err)
		}
	}
	return options, nil
}

// PollService manages polls and their options. Votes are never written
// here; they are read as stored.
type PollService struct {
	gw  gateway.Gateway
	now func() time.Time
}

func NewPollService(gw gateway.Gateway) *PollService {
	return &PollService{gw: gw, now: func() time.Time { return time.Now().UTC() }}
}

// CreatePoll writes the poll and then its options in input order. If an
// option insert fails the poll is deleted again and a *PartialFailure is
// returned.
func (s *PollService) CreatePoll(ctx context.Context, in CreatePollInput) (*models.PollWithOptions, error) {
	options, err := in.Validate()
	if err != nil {
		return nil, err
	}

	row, err := s.gw.Insert(ctx, models.TablePolls, gateway.Row{
		"game_id":   strings.TrimSpace(in.GameID),
		"question":  strings.TrimSpace(in.Question),
		"closes_at": in.ClosesAt.UTC(),
		"active":    true,
	})
	if err != nil {
		return nil, err
	}

	var poll models.Poll
	if err := gateway.Decode(row, &poll); err != nil {
		return nil, err
	}

	base := s.now()
	created := make([]models.PollOption, 0, len(options))
	for i, text := range options {
		optRow, err := s.gw.Insert(ctx, models.TablePollOptions, gateway.Row{
			"poll_id":     poll.ID,
			"option_text": text,
			"votes":       0,
			"created_at":  base.Add(time.Duration(i) * optionSpacing),
		})
		if err != nil {
			return nil, compensate(ctx, s.gw, models.TablePolls, "poll", poll.ID,
				fmt.Sprintf("option %d of %d", i+1, len(options)), err)
		}

		var opt models.PollOption
		if err := gateway.Decode(optRow, &opt); err != nil {
			return nil, err
		}
		created = append(created, opt)
	}

	utils.LogInfo(fmt.Sprintf("Created poll %s for game %s with %d options", poll.ID, poll.GameID, len(created)))
	result := models.NewPollWithOptions(poll, created, s.now())
	return &result, nil
}

// ToggleActive writes the negation of the active flag the caller last saw.
func (s *PollService) ToggleActive(ctx context.Context, pollID string, currentActive bool) (*models.Poll, error) {
	row, err := s.gw.Update(ctx, models.TablePolls, pollID, gateway.Row{"active": !currentActive})
	if err != nil {
		return nil, err
	}

	var poll models.Poll
	if err := gateway.Decode(row, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}

// DeletePoll removes the poll; its options go with it.
func (s *PollService) DeletePoll(ctx context.Context, pollID string) error {
	if err := s.gw.Delete(ctx, models.TablePolls, pollID); err != nil {
		return err
	}
	utils.LogInfo(fmt.Sprintf("Deleted poll %s", pollID))
	return nil
}

func (s *PollService) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	row, err := s.gw.Get(ctx, models.TablePolls, pollID)
	if err != nil {
		return nil, err
	}

	var poll models.Poll
	if err := gateway.Decode(row, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}

// ListOptions returns a poll's options oldest first.
func (s *PollService) ListOptions(ctx context.Context, pollID string) ([]models.PollOption, error) {
	rows, err := s.gw.List(ctx, models.TablePollOptions,
		gateway.Filter{"poll_id": pollID},
		gateway.Asc("created_at"),
	)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[models.PollOption](rows)
}

// ListPolls returns a game's polls newest first, each with its options.
func (s *PollService) ListPolls(ctx context.Context, gameID string) ([]models.PollWithOptions, error) {
	rows, err := s.gw.List(ctx, models.TablePolls,
		gateway.Filter{"game_id": gameID},
		gateway.Desc("created_at"),
	)
	if err != nil {
		return nil, err
	}
	polls, err := gateway.DecodeAll[models.Poll](rows)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]models.PollWithOptions, 0, len(polls))
	for _, p := range polls {
		options, err := s.ListOptions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.NewPollWithOptions(p, options, now))
	}
	return out, nil
}

// FindOrphans returns polls created before cutoff that have no options, the
// residue of a create whose rollback also failed.
func (s *PollService) FindOrphans(ctx context.Context, cutoff time.Time) ([]models.Poll, error) {
	rows, err := s.gw.List(ctx, models.TablePolls, nil, gateway.Asc("created_at"))
	if err != nil {
		return nil, err
	}
	polls, err := gateway.DecodeAll[models.Poll](rows)
	if err != nil {
		return nil, err
	}

	var orphans []models.Poll
	for _, p := range polls {
		if !p.CreatedAt.Before(cutoff) {
			break
		}
		options, err := s.ListOptions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if len(options) == 0 {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}
