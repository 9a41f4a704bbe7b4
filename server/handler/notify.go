package handler

import (
	"context"

	"github.com/tkrehbiel/blogfed/server/activity"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Notification kinds
const (
	NotifyFollow   = "follow"
	NotifyUnfollow = "unfollow"
	NotifyAccept   = "accept"
	NotifyReject   = "reject"
	NotifyComment  = "comment"
	NotifyQuote    = "quote"
	NotifyLike     = "like"
	NotifyRepost   = "repost"
)

// Notification tells the site owner something happened.
type Notification struct {
	Kind     string
	Actor    string // remote actor
	Local    string // local actor or post concerned
	Activity *activity.Activity
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Notifiers fans a notification out to each observer in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) {
	for _, o := range ns {
		o.Notify(ctx, n)
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to the log and counts them.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	telemetry.Increment("notify_"+n.Kind, 1)
	telemetry.Log("notification %s from [%s] for [%s]", n.Kind, n.Actor, n.Local)
}
