package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"playforge/gateway"
	"playforge/mirror"
	"playforge/models"
	"playforge/utils"
)

// PollBoard is the live mirror of one game's polls.
type PollBoard = mirror.Store[[]models.PollWithOptions]

// PollBoards keeps one PollBoard per recently viewed game. Boards evicted
// from the cache are closed, which ends their subscriptions, unless a stream
// still holds them through Acquire.
type PollBoards struct {
	ctx     context.Context
	polls   *PollService
	sub     gateway.Subscriber
	timeout time.Duration

	mu     sync.Mutex
	boards *lru.Cache[string, *PollBoard]
	leased map[string]*boardLease
	closed bool
}

type boardLease struct {
	board *PollBoard
	refs  int
}

// NewPollBoards creates the registry. ctx bounds the lifetime of every
// board's subscriptions.
func NewPollBoards(ctx context.Context, polls *PollService, sub gateway.Subscriber, size int, refreshTimeout time.Duration) (*PollBoards, error) {
	if size <= 0 {
		size = 64
	}
	b := &PollBoards{
		ctx:     ctx,
		polls:   polls,
		sub:     sub,
		timeout: refreshTimeout,
		leased:  make(map[string]*boardLease),
	}
	// Runs with b.mu held: every Add, Remove and Purge happens under it.
	boards, err := lru.NewWithEvict(size, func(gameID string, board *PollBoard) {
		log := utils.Component("poll_boards").WithField("game_id", gameID)
		if l, ok := b.leased[gameID]; ok && l.board == board && !b.closed {
			log.WithField("streams", l.refs).Debug("Poll board dropped from cache, kept for open streams")
			return
		}
		board.Close()
		log.Debug("Poll board evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poll board cache: %w", err)
	}
	b.boards = boards
	return b, nil
}

// Board returns the game's board, creating and subscribing it on first use.
// Options carry no game id, so every board watches all option changes.
func (b *PollBoards) Board(gameID string) (*PollBoard, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, &ValidationError{Field: "game_id", Message: "game is required"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boardLocked(gameID)
}

func (b *PollBoards) boardLocked(gameID string) (*PollBoard, error) {
	if b.closed {
		return nil, mirror.ErrClosed
	}
	if board, ok := b.boards.Get(gameID); ok {
		return board, nil
	}
	if l, ok := b.leased[gameID]; ok {
		b.boards.Add(gameID, l.board)
		return l.board, nil
	}

	board := mirror.New("polls:"+gameID, func(ctx context.Context) ([]models.PollWithOptions, error) {
		return b.polls.ListPolls(ctx, gameID)
	}, mirror.WithTimeout(b.timeout))

	if err := board.Watch(b.ctx, b.sub, models.TablePolls, &gateway.Eq{Field: "game_id", Value: gameID}); err != nil {
		board.Close()
		return nil, err
	}
	if err := board.Watch(b.ctx, b.sub, models.TablePollOptions, nil); err != nil {
		board.Close()
		return nil, err
	}

	b.boards.Add(gameID, board)
	return board, nil
}

// Acquire returns the game's board and pins it until release is called, so
// cache eviction and Forget leave it subscribed. Long-lived readers such as
// event streams use it instead of Board.
func (b *PollBoards) Acquire(gameID string) (board *PollBoard, release func(), err error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, nil, &ValidationError{Field: "game_id", Message: "game is required"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	board, err = b.boardLocked(gameID)
	if err != nil {
		return nil, nil, err
	}
	l, ok := b.leased[gameID]
	if !ok {
		l = &boardLease{board: board}
		b.leased[gameID] = l
	}
	l.refs++

	var once sync.Once
	return board, func() {
		once.Do(func() { b.release(gameID, l) })
	}, nil
}

func (b *PollBoards) release(gameID string, l *boardLease) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l.refs--
	if l.refs > 0 {
		return
	}
	if b.leased[gameID] == l {
		delete(b.leased, gameID)
	}
	if cached, ok := b.boards.Peek(gameID); !ok || cached != l.board {
		l.board.Close()
	}
}

// Polls serves a game's polls from its board, loading it on first use.
func (b *PollBoards) Polls(ctx context.Context, gameID string) ([]models.PollWithOptions, mirror.State, error) {
	board, err := b.Board(gameID)
	if err != nil {
		return nil, mirror.State{}, err
	}
	return board.Get(ctx)
}

// Forget drops the game's board from the cache. It is closed unless a stream
// still holds it.
func (b *PollBoards) Forget(gameID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boards.Remove(gameID)
}

// Len counts the cached boards.
func (b *PollBoards) Len() int {
	return b.boards.Len()
}

// Close closes every board, including the ones held by streams.
func (b *PollBoards) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.boards.Purge()
	for id, l := range b.leased {
		l.board.Close()
		delete(b.leased, id)
	}
}
