package twitch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	irc "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-herald/event"
	"github.com/onnwee/stream-herald/feature"
)

// Chat is the outbound surface the scheduler uses to speak in channel.
type Chat interface {
	Say(message string)
}

// Bot is the IRC side of the system: it watches chat for the first chatter,
// keeps per-user message counts, and answers the chat commands.
type Bot struct {
	client  *irc.Client
	channel string
	db      *sql.DB

	counters *feature.Counters
	giveaway *feature.Giveaway
	first    *feature.FirstChatter
	focus    *feature.Focus
	ks       *feature.Killswitch
	session  *Session
}

// BotDeps bundles the rule set the bot dispatches to.
type BotDeps struct {
	DB         *sql.DB
	Counters   *feature.Counters
	Giveaway   *feature.Giveaway
	First      *feature.FirstChatter
	Focus      *feature.Focus
	Killswitch *feature.Killswitch
	Session    *Session
}

func NewBot(username, oauthToken, channel string, deps BotDeps) *Bot {
	b := &Bot{
		client:   irc.NewClient(username, oauthToken),
		channel:  channel,
		db:       deps.DB,
		counters: deps.Counters,
		giveaway: deps.Giveaway,
		first:    deps.First,
		focus:    deps.Focus,
		ks:       deps.Killswitch,
		session:  deps.Session,
	}
	b.client.OnPrivateMessage(b.handleMessage)
	return b
}

// Say sends a plain chat line to the configured channel.
func (b *Bot) Say(message string) {
	if message == "" {
		return
	}
	b.client.Say(b.channel, message)
}

// Run connects to chat and blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := b.client.Disconnect(); err != nil {
			slog.Warn("chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()
	b.client.Join(b.channel)
	slog.Info("chat bot connecting", slog.String("channel", b.channel))
	if err := b.client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}

func (b *Bot) handleMessage(msg irc.PrivateMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user := event.UserRef{ID: msg.User.ID, Name: msg.User.Name, DisplayName: msg.User.DisplayName}
	if b.session != nil && b.session.Active() && b.first != nil {
		b.first.Set(ctx, user)
	}
	b.bumpMessageCount(ctx, msg.User.Name)

	cmd, arg := splitCommand(msg.Message)
	if cmd == "" {
		return
	}
	priv := privileges(msg)
	b.dispatch(ctx, cmd, arg, user, priv)
}

type chatPrivileges struct {
	mod         bool
	broadcaster bool
}

func (p chatPrivileges) elevated() bool { return p.mod || p.broadcaster }

func privileges(msg irc.PrivateMessage) chatPrivileges {
	_, mod := msg.User.Badges["moderator"]
	_, bc := msg.User.Badges["broadcaster"]
	return chatPrivileges{mod: mod, broadcaster: bc}
}

// splitCommand extracts a leading !command and its argument string.
func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return "", ""
	}
	parts := strings.SplitN(text[1:], " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func (b *Bot) dispatch(ctx context.Context, cmd, arg string, user event.UserRef, priv chatPrivileges) {
	switch cmd {
	case "counter":
		if b.counters == nil {
			return
		}
		if cnt, ok := b.counters.Update(ctx, strings.ToLower(arg)); ok {
			b.Say(fmt.Sprintf("%s: %d", cnt.Key, cnt.Value))
		}
	case "enter":
		if b.giveaway == nil {
			return
		}
		if err := b.giveaway.Join(ctx, user.ID, user.DisplayName); err != nil {
			slog.Warn("giveaway join failed", slog.String("user", user.Name), slog.Any("err", err))
		}
	case "focus":
		if b.focus == nil || !priv.elevated() {
			return
		}
		if strings.EqualFold(arg, "off") {
			b.focus.Set(ctx, false, 0)
			return
		}
		if minutes := b.focus.Handle(ctx, arg); minutes > 0 {
			b.Say(fmt.Sprintf("Focus mode on for %d minutes.", minutes))
		}
	case "ks":
		if b.ks == nil || !priv.elevated() {
			return
		}
		var explicit *bool
		switch strings.ToLower(arg) {
		case "on":
			v := true
			explicit = &v
		case "off":
			v := false
			explicit = &v
		case "":
		default:
			return
		}
		if b.ks.Toggle(explicit) {
			b.Say("Killswitch engaged; automated messages muted.")
		} else {
			b.Say("Killswitch released.")
		}
	case "giveaway":
		if b.giveaway == nil || !priv.broadcaster {
			return
		}
		sub, subArg := splitArg(arg)
		switch sub {
		case "start":
			if err := b.giveaway.Start(ctx); err != nil {
				slog.Warn("giveaway start failed", slog.Any("err", err))
				return
			}
			b.Say("Giveaway open! Type !enter to join.")
		case "pick":
			n := 1
			if v, err := strconv.Atoi(subArg); err == nil && v > 0 {
				n = v
			}
			winners, err := b.giveaway.PickWinners(ctx, n, time.Now())
			if err != nil {
				slog.Warn("giveaway pick failed", slog.Any("err", err))
				return
			}
			if len(winners) == 0 {
				b.Say("No entries to draw from.")
				return
			}
			names := make([]string, len(winners))
			for i, w := range winners {
				names[i] = w.DisplayName
			}
			b.Say("Winner(s): " + strings.Join(names, ", "))
		}
	}
}

func splitArg(arg string) (head, rest string) {
	parts := strings.SplitN(strings.TrimSpace(arg), " ", 2)
	head = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return head, rest
}

func (b *Bot) bumpMessageCount(ctx context.Context, login string) {
	if b.db == nil || login == "" {
		return
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO user_stats (username, first_chats, messages, updated_at) VALUES ($1, 0, 1, NOW())
		 ON CONFLICT (username) DO UPDATE SET messages = user_stats.messages + 1, updated_at = NOW()`,
		strings.ToLower(login)); err != nil {
		slog.Error("message count update failed", slog.String("user", login), slog.Any("err", err))
	}
}
