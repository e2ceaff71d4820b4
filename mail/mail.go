// Package mail sends approval requests and collects the replies.
package mail

import (
	"context"
)

// Message is one outgoing mail
type Message struct {
	To      string
	Subject string
	Body    string
}

// Reply is one unseen incoming mail
type Reply struct {
	From      string
	Subject   string
	Body      string
	MessageID string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Poller returns unseen replies and marks them seen
type Poller interface {
	PollUnseen(ctx context.Context) ([]Reply, error)
}
