package controllers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"playforge/models"
	"playforge/services"
	"playforge/utils"
)

const streamKeepAlive = 25 * time.Second

type PollController struct {
	polls           *services.PollService
	games           *services.GameService
	boards          *services.PollBoards
	defaultDuration time.Duration
	now             func() time.Time
}

func NewPollController(polls *services.PollService, games *services.GameService, boards *services.PollBoards, defaultDuration time.Duration) *PollController {
	return &PollController{
		polls:           polls,
		games:           games,
		boards:          boards,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

func (pc *PollController) current(polls []models.PollWithOptions) []models.PollWithOptions {
	now := pc.now()
	out := make([]models.PollWithOptions, len(polls))
	for i, p := range polls {
		out[i] = p.At(now)
	}
	return out
}

// ========== Public ==========

// gameID maps the :id path segment, which may be a catalog slug, to the
// game id polls are stored under.
func (pc *PollController) gameID(c *gin.Context) (string, bool) {
	id, err := pc.games.ResolveGameID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "Failed to resolve game")
		return "", false
	}
	return id, true
}

// ListPolls serves a game's polls from its live board.
func (pc *PollController) ListPolls(c *gin.Context) {
	gameID, ok := pc.gameID(c)
	if !ok {
		return
	}
	polls, state, err := pc.boards.Polls(c.Request.Context(), gameID)
	if err != nil {
		handleError(c, err, "Failed to load polls")
		return
	}

	utils.SuccessResponse(c, "Polls retrieved successfully", gin.H{
		"polls":        pc.current(polls),
		"stale":        state.Stale(),
		"refreshed_at": state.RefreshedAt,
	})
}

// StreamPolls pushes the game's polls as server-sent events: one event on
// connect and one per applied board refresh. The stream ends when the board
// is shut down.
func (pc *PollController) StreamPolls(c *gin.Context) {
	gameID, ok := pc.gameID(c)
	if !ok {
		return
	}
	board, release, err := pc.boards.Acquire(gameID)
	if err != nil {
		handleError(c, err, "Failed to open poll stream")
		return
	}
	defer release()

	// Holds only the latest snapshot; older ones are superseded.
	updates := make(chan []models.PollWithOptions, 1)
	cancel := board.OnChange(func(polls []models.PollWithOptions) {
		for {
			select {
			case updates <- polls:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer cancel()

	initial, _, err := board.Get(c.Request.Context())
	if err != nil {
		handleError(c, err, "Failed to load polls")
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("polls", pc.current(initial))
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-board.Done():
			return false
		case polls := <-updates:
			c.SSEvent("polls", pc.current(polls))
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", pc.now().UTC().Format(time.RFC3339))
			return true
		}
	})
}

// ========== Admin ==========

type createPollRequest struct {
	GameID   string     `json:"game_id"`
	Question string     `json:"question"`
	ClosesAt *time.Time `json:"closes_at"`
	Options  []string   `json:"options"`
}

// CreatePoll fills in the default closing date when none is given.
func (pc *PollController) CreatePoll(c *gin.Context) {
	var req createPollRequest
	if !bindJSON(c, &req) {
		return
	}

	closesAt := pc.now().Add(pc.defaultDuration)
	if req.ClosesAt != nil {
		closesAt = *req.ClosesAt
	}

	poll, err := pc.polls.CreatePoll(c.Request.Context(), services.CreatePollInput{
		GameID:   req.GameID,
		Question: req.Question,
		ClosesAt: closesAt,
		Options:  req.Options,
	})
	if err != nil {
		handleError(c, err, "Failed to create poll")
		return
	}
	utils.CreatedResponse(c, "Poll created successfully", poll)
}

// TogglePoll flips the active flag. Clients send the state they were shown;
// without it the stored state is read first.
func (pc *PollController) TogglePoll(c *gin.Context) {
	var req struct {
		CurrentActive *bool `json:"current_active"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	pollID := c.Param("id")
	current := req.CurrentActive
	if current == nil {
		poll, err := pc.polls.GetPoll(c.Request.Context(), pollID)
		if err != nil {
			handleError(c, err, "Failed to load poll")
			return
		}
		current = &poll.Active
	}

	poll, err := pc.polls.ToggleActive(c.Request.Context(), pollID, *current)
	if err != nil {
		handleError(c, err, "Failed to toggle poll")
		return
	}
	utils.SuccessResponse(c, "Poll updated successfully", gin.H{
		"poll":   poll,
		"status": poll.Status(pc.now()),
	})
}

func (pc *PollController) DeletePoll(c *gin.Context) {
	if err := pc.polls.DeletePoll(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err, "Failed to delete poll")
		return
	}
	utils.SuccessResponse(c, "Poll deleted successfully", nil)
}
