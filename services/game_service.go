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

type MediaInput struct {
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type FundingInput struct {
	GoalAmount   int64      `json:"goal_amount"`
	RaisedAmount int64      `json:"raised_amount"`
	BackerCount  int64      `json:"backer_count"`
	Currency     string     `json:"currency"`
	EndsAt       *time.Time `json:"ends_at"`
}

// GameInput holds the editable fields of a game.
type GameInput struct {
	StudioID    string            `json:"studio_id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Tagline     string            `json:"tagline"`
	Description string            `json:"description"`
	Genre       string            `json:"genre"`
	CoverURL    string            `json:"cover_url"`
	TrailerURL  string            `json:"trailer_url"`
	Status      models.GameStatus `json:"status"`
}

type CreateGameInput struct {
	GameInput
	Media   []MediaInput  `json:"media"`
	Funding *FundingInput `json:"funding"`
}

type StudioInput struct {
	Name        string `json:"name"`
	Website     string `json:"website"`
	LogoURL     string `json:"logo_url"`
	Description string `json:"description"`
}

// GameService manages the game catalog: games with their studio, media
// gallery and funding record.
type GameService struct {
	gw gateway.Gateway
}

func NewGameService(gw gateway.Gateway) *GameService {
	return &GameService{gw: gw}
}

func (in *GameInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.ValidateName("title", in.Title); err != nil {
		return invalid("title", err)
	}

	in.Slug = utils.Slugify(in.Slug)
	if in.Slug == "" {
		in.Slug = utils.Slugify(in.Title)
	}
	if in.Slug == "" {
		return &ValidationError{Field: "slug", Message: "slug must contain letters or digits"}
	}

	if in.Status == "" {
		in.Status = models.GameStatusDraft
	}
	if !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}

	for field, u := range map[string]string{"cover_url": in.CoverURL, "trailer_url": in.TrailerURL} {
		if u == "" {
			continue
		}
		if err := utils.ValidateHTTPURL(u); err != nil {
			return invalid(field, err)
		}
	}
	return nil
}

func (in GameInput) row() gateway.Row {
	return gateway.Row{
		"studio_id":   strings.TrimSpace(in.StudioID),
		"title":       in.Title,
		"slug":        in.Slug,
		"tagline":     strings.TrimSpace(in.Tagline),
		"description": in.Description,
		"genre":       strings.TrimSpace(in.Genre),
		"cover_url":   in.CoverURL,
		"trailer_url": in.TrailerURL,
		"status":      string(in.Status),
	}
}

func (in CreateGameInput) validateChildren() error {
	for i, m := range in.Media {
		if err := utils.ValidateHTTPURL(m.URL); err != nil {
			return invalid(fmt.Sprintf("media[%d].url", i), err)
		}
	}
	if f := in.Funding; f != nil {
		if f.GoalAmount <= 0 {
			return &ValidationError{Field: "funding.goal_amount", Message: "goal must be positive"}
		}
		if f.RaisedAmount < 0 || f.BackerCount < 0 {
			return &ValidationError{Field: "funding", Message: "amounts cannot be negative"}
		}
	}
	return nil
}

// CreateGame writes the game, then its media and funding. A failed child
// insert deletes the game again and returns a *PartialFailure.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput) (*models.GameDetail, error) {
	if err := in.GameInput.normalize(); err != nil {
		return nil, err
	}
	if err := in.validateChildren(); err != nil {
		return nil, err
	}
	if err := s.checkSlug(ctx, in.Slug, ""); err != nil {
		return nil, err
	}

	row, err := s.gw.Insert(ctx, models.TableGames, in.GameInput.row())
	if err != nil {
		return nil, err
	}
	var game models.Game
	if err := gateway.Decode(row, &game); err != nil {
		return nil, err
	}

	detail := &models.GameDetail{Game: game, TaglineHTML: utils.SanitizeText(game.Tagline), Media: []models.GameMedia{}}
	for i, m := range in.Media {
		kind := strings.TrimSpace(m.Kind)
		if kind == "" {
			kind = "image"
		}
		mRow, err := s.gw.Insert(ctx, models.TableGameMedia, gateway.Row{
			"game_id":     game.ID,
			"kind":        kind,
			"url":         m.URL,
			"caption":     strings.TrimSpace(m.Caption),
			"order_index": i,
		})
		if err != nil {
			return nil, compensate(ctx, s.gw, models.TableGames, "game", game.ID, fmt.Sprintf("media %d", i+1), err)
		}
		var media models.GameMedia
		if err := gateway.Decode(mRow, &media); err != nil {
			return nil, err
		}
		detail.Media = append(detail.Media, media)
	}

	if f := in.Funding; f != nil {
		currency := strings.ToUpper(strings.TrimSpace(f.Currency))
		if currency == "" {
			currency = "USD"
		}
		fRow, err := s.gw.Insert(ctx, models.TableGameFunding, gateway.Row{
			"game_id":       game.ID,
			"goal_amount":   f.GoalAmount,
			"raised_amount": f.RaisedAmount,
			"backer_count":  f.BackerCount,
			"currency":      currency,
			"ends_at":       f.EndsAt,
		})
		if err != nil {
			return nil, compensate(ctx, s.gw, models.TableGames, "game", game.ID, "funding", err)
		}
		var funding models.GameFunding
		if err := gateway.Decode(fRow, &funding); err != nil {
			return nil, err
		}
		detail.Funding = &funding
		detail.Progress = funding.Progress()
	}

	utils.LogInfo(fmt.Sprintf("Created game %q (%s)", game.Title, game.ID))
	return detail, nil
}

// UpdateGame replaces the editable fields of a game.
func (s *GameService) UpdateGame(ctx context.Context, id string, in GameInput) (*models.Game, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.checkSlug(ctx, in.Slug, id); err != nil {
		return nil, err
	}

	row, err := s.gw.Update(ctx, models.TableGames, id, in.row())
	if err != nil {
		return nil, err
	}
	var game models.Game
	if err := gateway.Decode(row, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// checkSlug rejects slug when a game other than selfID already uses it.
func (s *GameService) checkSlug(ctx context.Context, slug, selfID string) error {
	rows, err := s.gw.List(ctx, models.TableGames, gateway.Filter{"slug": slug})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if id, _ := row["id"].(string); id != selfID {
			return &ValidationError{Field: "slug", Message: fmt.Sprintf("slug %q is already taken", slug)}
		}
	}
	return nil
}

// DeleteGame removes the game with its media, funding and polls.
func (s *GameService) DeleteGame(ctx context.Context, id string) error {
	if err := s.gw.Delete(ctx, models.TableGames, id); err != nil {
		return err
	}
	utils.LogInfo(fmt.Sprintf("Deleted game %s", id))
	return nil
}

// ListGames returns games newest first with their funding, optionally only
// those in status.
func (s *GameService) ListGames(ctx context.Context, status models.GameStatus) ([]models.GameCard, error) {
	var filter gateway.Filter
	if status != "" {
		filter = gateway.Filter{"status": string(status)}
	}
	rows, err := s.gw.List(ctx, models.TableGames, filter, gateway.Desc("created_at"))
	if err != nil {
		return nil, err
	}
	games, err := gateway.DecodeAll[models.Game](rows)
	if err != nil {
		return nil, err
	}

	cards := make([]models.GameCard, 0, len(games))
	for _, g := range games {
		funding, err := s.funding(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		card := models.GameCard{Game: g, TaglineHTML: utils.SanitizeText(g.Tagline), Funding: funding}
		if funding != nil {
			card.Progress = funding.Progress()
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// GetGame looks a game up by id, falling back to its slug.
func (s *GameService) GetGame(ctx context.Context, idOrSlug string) (*models.GameDetail, error) {
	game, err := s.findGame(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	detail := &models.GameDetail{Game: *game, TaglineHTML: utils.SanitizeText(game.Tagline)}

	if game.StudioID != "" {
		row, err := s.gw.Get(ctx, models.TableStudios, game.StudioID)
		switch {
		case err == nil:
			var studio models.Studio
			if err := gateway.Decode(row, &studio); err != nil {
				return nil, err
			}
			detail.Studio = &studio
		case !gateway.IsNotFound(err):
			return nil, err
		}
	}

	mediaRows, err := s.gw.List(ctx, models.TableGameMedia,
		gateway.Filter{"game_id": game.ID},
		gateway.Asc("order_index"),
	)
	if err != nil {
		return nil, err
	}
	if detail.Media, err = gateway.DecodeAll[models.GameMedia](mediaRows); err != nil {
		return nil, err
	}

	if detail.Funding, err = s.funding(ctx, game.ID); err != nil {
		return nil, err
	}
	if detail.Funding != nil {
		detail.Progress = detail.Funding.Progress()
	}
	return detail, nil
}

// ResolveGameID returns the id of the game matching idOrSlug. Values that
// match no catalog game are returned unchanged: polls may belong to games
// that are not in the catalog.
func (s *GameService) ResolveGameID(ctx context.Context, idOrSlug string) (string, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return "", &ValidationError{Field: "game_id", Message: "game is required"}
	}
	game, err := s.findGame(ctx, idOrSlug)
	switch {
	case err == nil:
		return game.ID, nil
	case gateway.IsNotFound(err):
		return idOrSlug, nil
	default:
		return "", err
	}
}

func (s *GameService) findGame(ctx context.Context, idOrSlug string) (*models.Game, error) {
	row, err := s.gw.Get(ctx, models.TableGames, idOrSlug)
	if err != nil {
		if !gateway.IsNotFound(err) {
			return nil, err
		}
		rows, lerr := s.gw.List(ctx, models.TableGames, gateway.Filter{"slug": idOrSlug})
		if lerr != nil {
			return nil, lerr
		}
		if len(rows) == 0 {
			return nil, err
		}
		row = rows[0]
	}

	var game models.Game
	if err := gateway.Decode(row, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GameService) funding(ctx context.Context, gameID string) (*models.GameFunding, error) {
	rows, err := s.gw.List(ctx, models.TableGameFunding, gateway.Filter{"game_id": gameID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var f models.GameFunding
	if err := gateway.Decode(rows[0], &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *GameService) CreateStudio(ctx context.Context, in StudioInput) (*models.Studio, error) {
	name := strings.TrimSpace(in.Name)
	if err := utils.ValidateName("studio name", name); err != nil {
		return nil, invalid("name", err)
	}
	for field, u := range map[string]string{"website": in.Website, "logo_url": in.LogoURL} {
		if u == "" {
			continue
		}
		if err := utils.ValidateHTTPURL(u); err != nil {
			return nil, invalid(field, err)
		}
	}

	row, err := s.gw.Insert(ctx, models.TableStudios, gateway.Row{
		"name":        name,
		"website":     in.Website,
		"logo_url":    in.LogoURL,
		"description": in.Description,
	})
	if err != nil {
		return nil, err
	}
	var studio models.Studio
	if err := gateway.Decode(row, &studio); err != nil {
		return nil, err
	}
	return &studio, nil
}

func (s *GameService) ListStudios(ctx context.Context) ([]models.Studio, error) {
	rows, err := s.gw.List(ctx, models.TableStudios, nil, gateway.Asc("name"))
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[models.Studio](rows)
}
