package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskboard/internal/logx"
	"taskboard/internal/model"
	"taskboard/internal/recurrence"
	"taskboard/internal/repository"
	"taskboard/internal/service"
)

const (
	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconRecurring = "♻️"
)

const helpText = `<b>Commands</b>
/tasks &lt;board&gt; - open tasks on a board
/complete &lt;task&gt; - mark a task as done
/help - this message`

// Bot aggregates Telegram API with services.
type Bot struct {
	api      *tgbotapi.BotAPI
	userRepo *repository.UserRepository
	taskSvc  *service.TaskService
	loc      *time.Location
	log      logx.Logger
}

func New(token string, userRepo *repository.UserRepository, taskSvc *service.TaskService, loc *time.Location, log logx.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	log = log.With(logx.String("component", "bot"))
	log.Info("bot authorized", logx.String("account", api.Self.UserName))

	return &Bot{
		api:      api,
		userRepo: userRepo,
		taskSvc:  taskSvc,
		loc:      loc,
		log:      log,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Warn("handle message", logx.Err(err))
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help to see what I can do.")
	}

	b.log.Info("command", logx.Int64("from", msg.From.ID), logx.String("cmd", msg.Command()), logx.String("args", msg.CommandArguments()))
	switch msg.Command() {
	case "start":
		if _, err := b.ensureUser(ctx, msg.From); err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Hi, %s!\n\n%s", escape(displayName(msg.From)), helpText))
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Send /help.")
	}
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	boardID := strings.TrimSpace(msg.CommandArguments())
	if boardID == "" {
		return b.sendText(msg.Chat.ID, "Usage: /tasks &lt;board&gt;")
	}
	tasks, err := b.taskSvc.ListOpen(ctx, boardID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatTaskList(tasks, recurrence.Today(time.Now(), b.loc)))
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID := strings.TrimSpace(msg.CommandArguments())
	if taskID == "" {
		return b.sendText(msg.Chat.ID, "Usage: /complete &lt;task&gt;")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CompleteTask(ctx, taskID, user.ID, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return b.sendText(msg.Chat.ID, "Task not found.")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	b.log.Info("task completed", logx.String("task_id", task.ID), logx.String("user_id", user.ID), logx.Bool("recurring", task.IsRecurring()))
	return b.sendText(msg.Chat.ID, completionMessage(task))
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, displayName(from), from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

func completionMessage(task *model.Task) string {
	title := escape(normalizeTitle(task.Title))
	if task.IsRecurring() {
		return fmt.Sprintf("%s «%s» done. The next occurrence will appear on the board shortly.", iconRecurring, title)
	}
	return fmt.Sprintf("✅ «%s» done.", title)
}

func formatTaskList(tasks []model.Task, today time.Time) string {
	if len(tasks) == 0 {
		return "No open tasks 🎉"
	}
	var b strings.Builder
	b.WriteString("<b>Open tasks</b>\n\n")
	for _, t := range tasks {
		b.WriteString(formatTask(t, today))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTask(task model.Task, today time.Time) string {
	var b strings.Builder
	icon := iconDefault
	var due time.Time
	hasDue := false
	if task.DueDate != nil {
		if d, err := recurrence.ParseDate(*task.DueDate); err == nil {
			due, hasDue = d, true
		}
	}
	if hasDue {
		switch days := recurrence.DaysBetween(today, due); {
		case days < 0:
			icon = iconOverdue
		case days <= 2:
			icon = iconDue
		}
	}
	if task.IsRecurring() {
		icon += iconRecurring
	}
	b.WriteString(fmt.Sprintf("%s %s <code>%s</code>\n", icon, escape(normalizeTitle(task.Title)), escape(task.ID)))
	if hasDue {
		if days := recurrence.DaysBetween(today, due); days < 0 {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s · <b>overdue</b>\n", recurrence.FormatDate(due)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s · in %d d.\n", recurrence.FormatDate(due), days))
		}
	}
	if task.Section != nil && strings.TrimSpace(*task.Section) != "" {
		b.WriteString(fmt.Sprintf("   📂 %s\n", escape(*task.Section)))
	}
	b.WriteByte('\n')
	return b.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Untitled"
	}
	r := []rune(value)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
