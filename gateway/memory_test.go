package gateway

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"

	"playforge/models"
)

func newTestMemory(t *testing.T) *MemoryGateway {
	t.Helper()
	gw := NewMemoryGateway(nil)
	t.Cleanup(func() { _ = gw.Close(context.Background()) })
	return gw
}

func TestMemoryInsertStampsIDAndTimestamps(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	row, err := gw.Insert(ctx, models.TableFolders, Row{"name": "Guides"})
	assert.NilError(t, err)

	id, _ := row["id"].(string)
	assert.Assert(t, id != "")
	assert.Assert(t, row["created_at"] != nil)
	assert.Assert(t, row["updated_at"] != nil)

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row, err = gw.Insert(ctx, models.TableFolders, Row{"id": "custom", "name": "Other", "created_at": fixed})
	assert.NilError(t, err)
	assert.Equal(t, row["id"], "custom")
	assert.Equal(t, row["created_at"], fixed)

	_, err = gw.Insert(ctx, models.TableFolders, Row{"id": "custom"})
	var re *RemoteError
	assert.Assert(t, is.ErrorType(err, re))
	assert.Assert(t, !IsNotFound(err))
}

func TestMemoryListFiltersAndOrders(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	for i, name := range []string{"c", "a", "b"} {
		_, err := gw.Insert(ctx, models.TablePages, Row{
			"id":          name,
			"folder_id":   "f1",
			"order_index": 2 - i,
			"is_deleted":  false,
		})
		assert.NilError(t, err)
	}
	_, err := gw.Insert(ctx, models.TablePages, Row{"id": "x", "folder_id": "f2", "order_index": 0, "is_deleted": false})
	assert.NilError(t, err)
	_, err = gw.Insert(ctx, models.TablePages, Row{"id": "gone", "folder_id": "f1", "order_index": 0, "is_deleted": true})
	assert.NilError(t, err)

	rows, err := gw.List(ctx, models.TablePages, Filter{"folder_id": "f1", "is_deleted": false}, Asc("order_index"))
	assert.NilError(t, err)
	assert.DeepEqual(t, ids(rows), []string{"b", "a", "c"})

	rows, err = gw.List(ctx, models.TablePages, Filter{"folder_id": "f1", "is_deleted": false}, Desc("order_index"))
	assert.NilError(t, err)
	assert.DeepEqual(t, ids(rows), []string{"c", "a", "b"})

	rows, err = gw.List(ctx, models.TablePages, Filter{"folder_id": "nope"})
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 0)
}

func TestMemoryListTieBreaksOnSecondOrder(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := gw.Insert(ctx, models.TableFolders, Row{"id": "late", "order_index": 0, "created_at": base.Add(time.Minute)})
	assert.NilError(t, err)
	_, err = gw.Insert(ctx, models.TableFolders, Row{"id": "early", "order_index": 0, "created_at": base})
	assert.NilError(t, err)

	rows, err := gw.List(ctx, models.TableFolders, nil, Asc("order_index"), Asc("created_at"))
	assert.NilError(t, err)
	assert.DeepEqual(t, ids(rows), []string{"early", "late"})
}

func TestMemoryReturnedRowsAreCopies(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	row, err := gw.Insert(ctx, models.TableFolders, Row{"id": "f", "name": "Guides"})
	assert.NilError(t, err)
	row["name"] = "mutated"

	got, err := gw.Get(ctx, models.TableFolders, "f")
	assert.NilError(t, err)
	assert.Equal(t, got["name"], "Guides")
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	_, err := gw.Insert(ctx, models.TablePolls, Row{"id": "p", "question": "Q?", "active": true})
	assert.NilError(t, err)

	row, err := gw.Update(ctx, models.TablePolls, "p", Row{"active": false, "id": "ignored"})
	assert.NilError(t, err)
	assert.Equal(t, row["id"], "p")
	assert.Equal(t, row["question"], "Q?")
	assert.Equal(t, row["active"], false)

	_, err = gw.Update(ctx, models.TablePolls, "missing", Row{"active": true})
	assert.Assert(t, IsNotFound(err))
}

func TestMemoryGetAndDeleteMissing(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	_, err := gw.Get(ctx, models.TablePolls, "missing")
	assert.Assert(t, IsNotFound(err))
	assert.ErrorContains(t, err, "missing not found")

	err = gw.Delete(ctx, models.TablePolls, "missing")
	assert.Assert(t, IsNotFound(err))
}

func TestMemoryCancelledContext(t *testing.T) {
	gw := newTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.List(ctx, models.TableFolders, nil)
	var re *RemoteError
	assert.Assert(t, is.ErrorType(err, re))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryDeleteCascades(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	mustInsert(t, gw, models.TableGames, Row{"id": "g"})
	mustInsert(t, gw, models.TablePolls, Row{"id": "p1", "game_id": "g"})
	mustInsert(t, gw, models.TablePolls, Row{"id": "p2", "game_id": "other"})
	mustInsert(t, gw, models.TablePollOptions, Row{"id": "o1", "poll_id": "p1"})
	mustInsert(t, gw, models.TablePollOptions, Row{"id": "o2", "poll_id": "p1"})
	mustInsert(t, gw, models.TablePollOptions, Row{"id": "o3", "poll_id": "p2"})
	mustInsert(t, gw, models.TableGameMedia, Row{"id": "m1", "game_id": "g"})

	var optionEvents, gameEvents recorder
	_, err := gw.Subscribe(ctx, models.TablePollOptions, nil, optionEvents.add)
	assert.NilError(t, err)
	_, err = gw.Subscribe(ctx, models.TableGames, nil, gameEvents.add)
	assert.NilError(t, err)

	assert.NilError(t, gw.Delete(ctx, models.TableGames, "g"))

	polls, err := gw.List(ctx, models.TablePolls, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, ids(polls), []string{"p2"})

	options, err := gw.List(ctx, models.TablePollOptions, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, ids(options), []string{"o3"})

	media, err := gw.List(ctx, models.TableGameMedia, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(media), 0)

	poll.WaitOn(t, waitForEvents(&optionEvents, 2), poll.WithTimeout(2*time.Second))
	poll.WaitOn(t, waitForEvents(&gameEvents, 1), poll.WithTimeout(2*time.Second))
	for _, ev := range optionEvents.snapshot() {
		assert.Equal(t, ev.Type, ChangeDelete)
		assert.Equal(t, ev.Record["poll_id"], "p1")
	}
}

func TestMemoryFolderDeleteRemovesPages(t *testing.T) {
	gw := newTestMemory(t)
	ctx := context.Background()

	mustInsert(t, gw, models.TableFolders, Row{"id": "f"})
	mustInsert(t, gw, models.TablePages, Row{"id": "p1", "folder_id": "f"})
	mustInsert(t, gw, models.TablePages, Row{"id": "p2", "folder_id": "f"})

	assert.NilError(t, gw.Delete(ctx, models.TableFolders, "f"))

	pages, err := gw.List(ctx, models.TablePages, Filter{"folder_id": "f"})
	assert.NilError(t, err)
	assert.Equal(t, len(pages), 0)
}

func TestSchemaDescendants(t *testing.T) {
	got := DefaultSchema.descendants(models.TableGames)
	assert.DeepEqual(t, got, []string{
		models.TableGameMedia,
		models.TableGameFunding,
		models.TablePolls,
		models.TablePollOptions,
	})
	assert.Equal(t, len(DefaultSchema.descendants(models.TableStudios)), 0)
}

func TestDecodeAll(t *testing.T) {
	closes := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{"id": "p1", "game_id": "g", "question": "Which?", "closes_at": closes, "active": true},
		{"id": "p2", "game_id": "g", "question": "Why?", "closes_at": closes, "active": false},
	}

	polls, err := DecodeAll[models.Poll](rows)
	assert.NilError(t, err)
	assert.Equal(t, len(polls), 2)
	assert.Equal(t, polls[0].Question, "Which?")
	assert.Assert(t, polls[0].ClosesAt.Equal(closes))
	assert.Equal(t, polls[1].Active, false)
}

func mustInsert(t *testing.T, gw Gateway, table string, row Row) Row {
	t.Helper()
	created, err := gw.Insert(context.Background(), table, row)
	assert.NilError(t, err)
	return created
}

func ids(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row["id"].(string))
	}
	return out
}
