// Package notify delivers templated messages to players. Delivery is
// fire-and-forget from the engine's perspective: failures are logged, never
// propagated.
package notify

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/message"
)

// Notifier sends one coded message to a set of users.
type Notifier interface {
	Send(userIDs []uuid.UUID, code message.Code, ctx map[string]string)
}

// LogNotifier writes every notification to the log. It is the delivery
// fallback and the whole of delivery in development.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Send(userIDs []uuid.UUID, code message.Code, ctx map[string]string) {
	for _, id := range userIDs {
		n.Log.WithFields(logrus.Fields{
			"user": id,
			"code": int(code),
		}).Info(message.Render(code, ctx))
	}
}
