package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Command int

const (
	CmdNone Command = iota
	CmdLogin
	CmdLogout
	CmdStatistics
)

// ParseCommand matches a message body against the command surface. Matching
// is exact after trimming and ignores case.
func ParseCommand(content string) Command {
	switch strings.ToLower(strings.TrimSpace(content)) {
	case "@login", "@loggingin":
		return CmdLogin
	case "@logout":
		return CmdLogout
	case "@statistics":
		return CmdStatistics
	default:
		return CmdNone
	}
}

// Respond runs cmd for member and returns the reply for the channel.
func Respond(ctx context.Context, app *App, cmd Command, member Member) string {
	switch cmd {
	case CmdLogin:
		if _, err := app.Login(ctx, member); err != nil {
			return failureReply("login", err)
		}
		return fmt.Sprintf("Welcome, %s! Your login has been recorded.", member.Mention)

	case CmdLogout:
		res, err := app.Logout(ctx, member)
		if err != nil {
			return failureReply("logout", err)
		}
		reply := fmt.Sprintf("Goodbye, %s! Your logout has been recorded.", member.Mention)
		if res.HadLogin && res.Session > 0 {
			reply += fmt.Sprintf(" Session length: %s.", FormatDuration(res.Session))
		}
		return reply

	case CmdStatistics:
		res, err := app.CurrentStatistics(ctx)
		if err != nil {
			LogErrorf("Failed to build statistics: %v", err)
			return "Sorry, I couldn't update the statistics sheet. Please try again later."
		}
		return fmt.Sprintf("Statistics for %s have been updated (%d users).", res.Period, res.Users)
	}
	return ""
}

func failureReply(what string, err error) string {
	reply := fmt.Sprintf("Sorry, I couldn't record your %s in the sheet.", what)
	if errors.Is(err, ErrQueued) {
		reply += " It has been queued and will be retried."
	}
	return reply
}

// Bot relays chat commands to the App. Commands run on the pool so the
// gateway's event loop never waits on the sheet.
type Bot struct {
	app     *App
	pool    *Pool
	session *discordgo.Session
	ctx     context.Context
}

func NewBot(token string, app *App, pool *Pool) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b := &Bot{app: app, pool: pool, session: session, ctx: context.Background()}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessage)
	return b, nil
}

// Run connects to the gateway and blocks until ctx is done. The session is
// closed first so no new command reaches the pool, then commands in flight
// are waited for.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}

	<-ctx.Done()
	err := b.session.Close()
	b.pool.Wait()
	return err
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	LogInfof("Logged in as %s", r.User.Username)
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	cmd := ParseCommand(m.Content)
	if cmd == CmdNone {
		return
	}

	member := memberFromMessage(s, m)
	err := b.pool.Go(b.ctx, func(ctx context.Context) {
		reply := Respond(ctx, b.app, cmd, member)
		if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
			LogErrorf("Failed to reply in channel %s: %v", m.ChannelID, err)
		}
	})
	if err != nil {
		LogWarnf("Dropped command from %s: %v", member.DisplayName, err)
	}
}

func memberFromMessage(s *discordgo.Session, m *discordgo.MessageCreate) Member {
	member := Member{
		ID:          m.Author.ID,
		DisplayName: displayName(m.Author, m.Member),
		Mention:     m.Author.Mention(),
	}
	if m.Member == nil || m.GuildID == "" {
		return member
	}

	member.Roles = resolveRoles(m.Member.Roles, func(id string) (string, bool) {
		role, err := s.State.Role(m.GuildID, id)
		if err != nil {
			return "", false
		}
		return role.Name, true
	})
	return member
}

// displayName prefers the guild nickname, then the global display name.
func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func resolveRoles(ids []string, lookup func(id string) (string, bool)) []string {
	var roles []string
	for _, id := range ids {
		name, ok := lookup(id)
		if !ok || name == "@everyone" {
			continue
		}
		roles = append(roles, name)
	}
	return roles
}
