package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenhq/offworker/internal/record"
)

func TestRenderer_EnglishDefault(t *testing.T) {
	r := NewRenderer("en-US")

	n := r.Default()
	assert.Equal(t, "Task Manager", n.Title)
	assert.Equal(t, "You have a new notification", n.Body)
}

func TestRenderer_BrazilianPortuguese(t *testing.T) {
	r := NewRenderer("pt-BR")

	n := r.Default()
	assert.Equal(t, "Gerenciador de Tarefas", n.Title)
}

func TestRenderer_UnknownLocaleFallsBack(t *testing.T) {
	r := NewRenderer("tlh") // Klingon

	n := r.Default()
	assert.Equal(t, "Task Manager", n.Title)
}

func TestRenderer_EmptyLocaleFallsBack(t *testing.T) {
	r := NewRenderer("")
	assert.Equal(t, "Task Manager", r.Default().Title)
}

func TestRenderer_ReminderPerTaskTag(t *testing.T) {
	r := NewRenderer("en")

	n1 := r.Reminder(record.PendingTask{ID: "t1", Title: "Ship release"})
	n2 := r.Reminder(record.PendingTask{ID: "t2", Title: "Write notes"})

	assert.Equal(t, "Task due: Ship release", n1.Title)
	assert.Equal(t, "task-reminder-t1", n1.Tag)
	assert.Equal(t, "task-reminder-t2", n2.Tag)
	assert.NotEqual(t, n1.Tag, n2.Tag, "reminders must coexist")
	assert.True(t, n1.RequireInteraction)
}
