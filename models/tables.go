package models

// Table names shared by the gateway drivers and the services.
const (
	TableFolders     = "folders"
	TablePages       = "pages"
	TablePolls       = "polls"
	TablePollOptions = "poll_options"
	TableStudios     = "studios"
	TableGames       = "games"
	TableGameMedia   = "game_media"
	TableGameFunding = "game_funding"
)

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Folder{}, &Page{},
		&Studio{}, &Game{}, &GameMedia{}, &GameFunding{},
		&Poll{}, &PollOption{},
	}
}
