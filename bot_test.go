package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		expected Command
	}{
		{"@login", CmdLogin},
		{"  @LOGIN  ", CmdLogin},
		{"@loggingin", CmdLogin},
		{"@Logout", CmdLogout},
		{"@statistics", CmdStatistics},
		{"@login please", CmdNone},
		{"login", CmdNone},
		{"", CmdNone},
		{"hello @logout", CmdNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCommand(tt.input))
		})
	}
}

func TestDisplayName(t *testing.T) {
	user := &discordgo.User{ID: "1", Username: "alice_01", GlobalName: "Alice"}

	assert.Equal(t, "Hunter Alice", displayName(user, &discordgo.Member{Nick: "Hunter Alice"}))
	assert.Equal(t, "Alice", displayName(user, &discordgo.Member{}))
	assert.Equal(t, "Alice", displayName(user, nil))
	assert.Equal(t, "bob", displayName(&discordgo.User{Username: "bob"}, nil))
}

func TestResolveRoles(t *testing.T) {
	names := map[string]string{"1": "@everyone", "2": "Hunter", "3": "Scout"}
	lookup := func(id string) (string, bool) {
		name, ok := names[id]
		return name, ok
	}

	assert.Equal(t, []string{"Hunter", "Scout"}, resolveRoles([]string{"1", "2", "9", "3"}, lookup))
	assert.Nil(t, resolveRoles(nil, lookup))
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	app, clock := newTestApp(t, NewMemoryWorkbook())
	alice := member("alice", "Hunter")

	reply := Respond(ctx, app, CmdLogin, alice)
	assert.Equal(t, "Welcome, <@id-alice>! Your login has been recorded.", reply)

	clock.Set(clock.Now().Add(2*time.Hour + 30*time.Minute))
	reply = Respond(ctx, app, CmdLogout, alice)
	assert.Equal(t, "Goodbye, <@id-alice>! Your logout has been recorded. Session length: 2:30:00.", reply)

	reply = Respond(ctx, app, CmdLogout, member("bob"))
	assert.Equal(t, "Goodbye, <@id-bob>! Your logout has been recorded.", reply)

	reply = Respond(ctx, app, CmdStatistics, alice)
	assert.Equal(t, "Statistics for October 2026 have been updated (1 users).", reply)

	assert.Empty(t, Respond(ctx, app, CmdNone, alice))
}

func TestRespondFailure(t *testing.T) {
	ctx := context.Background()
	book := newFailingWorkbook()
	app, _ := newTestApp(t, book)
	book.stores["Logins"].failRows = true

	reply := Respond(ctx, app, CmdLogin, member("alice"))
	assert.Equal(t, "Sorry, I couldn't record your login in the sheet.", reply)

	reply = Respond(ctx, app, CmdStatistics, member("alice"))
	assert.Equal(t, "Sorry, I couldn't update the statistics sheet. Please try again later.", reply)
}

func TestFailureReply(t *testing.T) {
	queued := errors.Join(errBackend, ErrQueued)

	assert.Equal(t, "Sorry, I couldn't record your logout in the sheet. It has been queued and will be retried.", failureReply("logout", queued))
	assert.Equal(t, "Sorry, I couldn't record your logout in the sheet.", failureReply("logout", errBackend))
}
