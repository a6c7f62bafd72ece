package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"playforge/gateway"
	"playforge/mirror"
	"playforge/models"
)

func newPollBoards(t *testing.T, gw *faultyGateway, size int) (*PollBoards, *PollService) {
	t.Helper()
	svc := newPollService(gw)
	boards, err := NewPollBoards(context.Background(), svc, gw, size, time.Second)
	assert.NilError(t, err)
	t.Cleanup(boards.Close)
	return boards, svc
}

func waitForPolls(board *PollBoard, n int) poll.Check {
	return func(poll.LogT) poll.Result {
		polls, _ := board.Snapshot()
		if len(polls) == n {
			return poll.Success()
		}
		return poll.Continue("board has %d polls, want %d", len(polls), n)
	}
}

func TestPollBoardFollowsChanges(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, svc := newPollBoards(t, gw, 4)
	ctx := context.Background()

	polls, state, err := boards.Polls(ctx, "game-1")
	assert.NilError(t, err)
	assert.Equal(t, len(polls), 0)
	assert.Assert(t, state.Loaded)

	board, err := boards.Board("game-1")
	assert.NilError(t, err)

	created, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)
	poll.WaitOn(t, waitForPolls(board, 1), poll.WithTimeout(2*time.Second))

	// Polls of another game do not show up.
	other := validPoll("x", "y")
	other.GameID = "game-2"
	_, err = svc.CreatePoll(ctx, other)
	assert.NilError(t, err)

	_, err = svc.ToggleActive(ctx, created.Poll.ID, true)
	assert.NilError(t, err)
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		polls, _ := board.Snapshot()
		if len(polls) == 1 && !polls[0].Poll.Active {
			return poll.Success()
		}
		return poll.Continue("toggle not mirrored yet")
	}, poll.WithTimeout(2*time.Second))

	assert.NilError(t, svc.DeletePoll(ctx, created.Poll.ID))
	poll.WaitOn(t, waitForPolls(board, 0), poll.WithTimeout(2*time.Second))
}

func TestPollBoardSeesVoteChanges(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, svc := newPollBoards(t, gw, 4)
	ctx := context.Background()

	created, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)

	board, err := boards.Board("game-1")
	assert.NilError(t, err)
	_, _, err = board.Get(ctx)
	assert.NilError(t, err)

	_, err = gw.Update(ctx, models.TablePollOptions, created.Options[1].ID, gateway.Row{"votes": 5})
	assert.NilError(t, err)

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		polls, _ := board.Snapshot()
		if len(polls) == 1 && polls[0].TotalVotes == 5 {
			return poll.Success()
		}
		return poll.Continue("vote not mirrored yet")
	}, poll.WithTimeout(2*time.Second))
}

func TestPollBoardsEvictAndForget(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, _ := newPollBoards(t, gw, 2)

	first, err := boards.Board("g1")
	assert.NilError(t, err)
	again, err := boards.Board("g1")
	assert.NilError(t, err)
	assert.Assert(t, first == again)

	_, err = boards.Board("g2")
	assert.NilError(t, err)
	_, err = boards.Board("g3")
	assert.NilError(t, err)
	assert.Equal(t, boards.Len(), 2)

	// The evicted board was closed.
	assert.ErrorContains(t, first.Refresh(context.Background()), "closed")

	boards.Forget("g3")
	assert.Equal(t, boards.Len(), 1)

	_, err = boards.Board("  ")
	var verr *ValidationError
	assert.ErrorType(t, err, verr)
}

func TestPollBoardServesStaleSnapshot(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, svc := newPollBoards(t, gw, 4)
	ctx := context.Background()

	_, err := svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)

	board, err := boards.Board("game-1")
	assert.NilError(t, err)
	_, _, err = board.Get(ctx)
	assert.NilError(t, err)

	gw.setListFailure(func(table string) bool { return table == models.TablePolls })
	assert.Assert(t, board.Refresh(ctx) != nil)

	polls, state, err := boards.Polls(ctx, "game-1")
	assert.NilError(t, err)
	assert.Equal(t, len(polls), 1)
	assert.Assert(t, state.Stale())
}

func TestAcquiredBoardSurvivesEviction(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, svc := newPollBoards(t, gw, 1)
	ctx := context.Background()

	board, release, err := boards.Acquire("game-1")
	assert.NilError(t, err)
	_, _, err = board.Get(ctx)
	assert.NilError(t, err)

	var mu sync.Mutex
	calls := 0
	cancel := board.OnChange(func([]models.PollWithOptions) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	defer cancel()

	// game-2 pushes game-1 out of the cache.
	_, err = boards.Board("game-2")
	assert.NilError(t, err)
	assert.Equal(t, boards.Len(), 1)

	_, err = svc.CreatePoll(ctx, validPoll("a", "b"))
	assert.NilError(t, err)
	poll.WaitOn(t, waitForPolls(board, 1), poll.WithTimeout(2*time.Second))
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		mu.Lock()
		defer mu.Unlock()
		if calls > 0 {
			return poll.Success()
		}
		return poll.Continue("listener not called yet")
	}, poll.WithTimeout(2*time.Second))

	// Viewing the game again reuses the held board.
	again, err := boards.Board("game-1")
	assert.NilError(t, err)
	assert.Assert(t, again == board)

	// Once the stream lets go and the board is evicted, it is closed.
	release()
	release()
	_, err = boards.Board("game-3")
	assert.NilError(t, err)
	<-board.Done()
	assert.ErrorIs(t, board.Refresh(ctx), mirror.ErrClosed)
}

func TestForgetKeepsAcquiredBoardUntilRelease(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, _ := newPollBoards(t, gw, 4)

	board, release, err := boards.Acquire("game-1")
	assert.NilError(t, err)

	boards.Forget("game-1")
	assert.Equal(t, boards.Len(), 0)
	assert.NilError(t, board.Refresh(context.Background()))

	release()
	<-board.Done()
}

func TestCloseEndsAcquiredBoards(t *testing.T) {
	gw := newFaultyGateway(t)
	boards, _ := newPollBoards(t, gw, 4)

	board, release, err := boards.Acquire("game-1")
	assert.NilError(t, err)
	defer release()

	boards.Close()
	<-board.Done()

	_, err = boards.Board("game-1")
	assert.ErrorIs(t, err, mirror.ErrClosed)
}
