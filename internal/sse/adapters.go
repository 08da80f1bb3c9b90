package sse

import (
	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/notify"
)

// Notifications renders notify entries as SSE events.
type Notifications struct{ B *Broker }

func (n Notifications) Show(e notify.Entry) {
	n.B.Publish(Event{Type: TypeNotificationShown, Data: e})
}

func (n Notifications) Dismiss(e notify.Entry) {
	n.B.Publish(Event{Type: TypeNotificationDismissed, Data: map[string]string{"id": e.ID}})
}

// Badge renders badge state as a sticky SSE event so late pages see the count.
type Badge struct{ B *Broker }

func (d Badge) Render(s badge.State) {
	d.B.Publish(Event{Type: TypeBadgeUpdated, Data: s, Sticky: true})
}

// Navigator asks connected pages to navigate.
type Navigator struct{ B *Broker }

func (n Navigator) Navigate(path string) {
	n.B.Publish(Event{Type: TypeNavigate, Data: map[string]string{"location": path}})
}
