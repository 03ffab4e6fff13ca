package bot

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"taskboard/internal/model"
	"taskboard/internal/recurrence"
)

func ptr[T any](v T) *T { return &v }

func TestFormatTaskList(t *testing.T) {
	t.Parallel()
	today := recurrence.Date(2025, time.June, 10)

	assert.Equal(t, "No open tasks 🎉", formatTaskList(nil, today))

	got := formatTaskList([]model.Task{
		{ID: "t-1", Title: "pay <rent>", DueDate: ptr("2025-06-08")},
		{ID: "t-2", Title: "Weekly report", DueDate: ptr("2025-06-11"), Section: ptr("Ops"),
			RecurringGroupID: ptr("g-1"), RecurringConfig: []byte(`{"frequency":"weekly","interval":1}`)},
		{ID: "t-3", Title: "Someday"},
	}, today)

	assert.Contains(t, got, iconOverdue+" Pay &lt;rent&gt; <code>t-1</code>")
	assert.Contains(t, got, "Due 2025-06-08 · <b>overdue</b>")
	assert.Contains(t, got, iconDue+iconRecurring+" Weekly report")
	assert.Contains(t, got, "Due 2025-06-11 · in 1 d.")
	assert.Contains(t, got, "📂 Ops")
	assert.Contains(t, got, iconDefault+" Someday <code>t-3</code>")
}

func TestCompletionMessage(t *testing.T) {
	t.Parallel()
	once := &model.Task{Title: "call bob"}
	assert.Equal(t, "✅ «Call bob» done.", completionMessage(once))

	series := &model.Task{Title: "standup", RecurringGroupID: ptr("g"), RecurringConfig: []byte(`{}`)}
	assert.Contains(t, completionMessage(series), iconRecurring)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Ann Lee", displayName(&tgbotapi.User{FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "ann", displayName(&tgbotapi.User{UserName: "ann"}))
}
