package notify

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lumenhq/offworker/internal/record"
)

// Localized copy for worker-generated notifications (reminders and the
// default record). Push senders provide their own text; only locally
// constructed notifications go through the renderer.

func init() {
	en := language.English
	message.SetString(en, "notification.default.title", "Task Manager")
	message.SetString(en, "notification.default.body", "You have a new notification")
	message.SetString(en, "notification.reminder.title", "Task due: %s")
	message.SetString(en, "notification.reminder.body", "This task is due. Open the app to review it.")
	message.SetString(en, "notification.action.view", "View")
	message.SetString(en, "notification.action.dismiss", "Dismiss")

	ptBR := language.BrazilianPortuguese
	message.SetString(ptBR, "notification.default.title", "Gerenciador de Tarefas")
	message.SetString(ptBR, "notification.default.body", "Você tem uma nova notificação")
	message.SetString(ptBR, "notification.reminder.title", "Tarefa pendente: %s")
	message.SetString(ptBR, "notification.reminder.body", "Esta tarefa venceu. Abra o aplicativo para revisá-la.")
	message.SetString(ptBR, "notification.action.view", "Ver")
	message.SetString(ptBR, "notification.action.dismiss", "Dispensar")
}

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supported)

// Renderer produces localized notification copy for one locale.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer picks the best supported language for a BCP 47 locale
// string. Unknown or empty locales fall back to English.
func NewRenderer(locale string) *Renderer {
	tag, _ := language.MatchStrings(matcher, locale)
	return &Renderer{printer: message.NewPrinter(tag)}
}

// Default returns the localized default notification record.
func (r *Renderer) Default() record.Notification {
	n := record.DefaultNotification()
	n.Title = r.printer.Sprintf("notification.default.title")
	n.Body = r.printer.Sprintf("notification.default.body")
	n.Actions = []record.Action{
		{Action: "view", Title: r.printer.Sprintf("notification.action.view")},
		{Action: ActionDismiss, Title: r.printer.Sprintf("notification.action.dismiss")},
	}
	return n
}

// Reminder returns the notification for one due task. Each reminder
// carries its own tag so multiple reminders can coexist, and requires
// explicit interaction to dismiss.
func (r *Renderer) Reminder(task record.PendingTask) record.Notification {
	n := r.Default()
	n.Title = r.printer.Sprintf("notification.reminder.title", task.Title)
	n.Body = r.printer.Sprintf("notification.reminder.body")
	n.Tag = fmt.Sprintf("task-reminder-%s", task.ID)
	n.RequireInteraction = true
	return n
}
