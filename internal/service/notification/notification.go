// Package notification is the narrow interface to the external notification
// service. Delivery is best-effort: implementations swallow their own
// failures, an undelivered notification must never fail an authentication.
package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/logger"
)

// Device details captured from the inbound request
type DeviceContext struct {
	IP        string
	UserAgent string
}

type Notifier interface {
	// Tell the parent their child logged in
	NotifyLogin(ctx context.Context, childID uuid.UUID, device DeviceContext)

	// Tell the parent something looks off (failed-attempt streaks, lockouts,
	// refresh token reuse, risky login hours)
	NotifySuspiciousActivity(ctx context.Context, childID uuid.UUID, details string)
}

// LogNotifier writes notifications to the log. Stands in until the real
// notification service is wired up and doubles as the fallback sink
type LogNotifier struct {
	Logger logger.Logger
}

func (n *LogNotifier) NotifyLogin(ctx context.Context, childID uuid.UUID, device DeviceContext) {
	n.Logger.Info("login notification",
		"child_id", childID,
		"ip", device.IP,
		"user_agent", device.UserAgent,
	)
}

func (n *LogNotifier) NotifySuspiciousActivity(ctx context.Context, childID uuid.UUID, details string) {
	n.Logger.Warn("suspicious activity notification",
		"child_id", childID,
		"details", details,
	)
}
