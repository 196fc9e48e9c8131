package telegram

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command published to the Telegram menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string // without the leading slash
}

// Registry maps slash commands and their aliases to handlers.
type Registry struct {
	commands map[string]Command
	aliases  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		aliases:  make(map[string]string),
	}
}

// RegisterCommand adds cmd under name, which must start with "/". Invalid and
// duplicate registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	reason := ""
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		reason = "invalid"
	case !strings.HasPrefix(name, "/"):
		reason = "no_slash_prefix"
	case r.taken(name):
		reason = "duplicate"
	}
	if reason != "" {
		logger.Warn(context.Background(), "tg.wire", "command.skip",
			slog.String("name", name),
			slog.String("cause", reason),
		)
		return
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		alias = "/" + strings.TrimPrefix(alias, "/")
		if !r.taken(alias) {
			r.aliases[alias] = name
		}
	}
}

func (r *Registry) taken(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

// ListCommands returns commands sorted by name for the Telegram menu.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	out := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if visibleOnly && cmd.Hidden {
			continue
		}
		out = append(out, tele.Command{Text: name[1:], Description: cmd.Description})
	}
	slices.SortFunc(out, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return out
}

// LookupCommand resolves the first word of text, ignoring a @botname suffix,
// to the canonical command name. Text without a leading slash never matches.
func (r *Registry) LookupCommand(text string) (string, Command, bool) {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	word, _, _ = strings.Cut(word, "\n")
	word, _, _ = strings.Cut(word, "@")
	if !strings.HasPrefix(word, "/") {
		return "", Command{}, false
	}
	if canonical, ok := r.aliases[word]; ok {
		word = canonical
	}
	cmd, ok := r.commands[word]
	if !ok {
		return "", Command{}, false
	}
	return word, cmd, true
}

func (r *Registry) Commands() map[string]Command {
	return r.commands
}

// InitBotCommands publishes the visible commands via setMyCommands.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.Error(context.Background(), "tg.wire", "commands.set_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}
