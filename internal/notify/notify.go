// Package notify delivers out-of-band messages such as password reset links.
package notify

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Notifier hands a reset token to whatever delivery channel the deployment uses.
type Notifier interface {
	PasswordReset(ctx context.Context, email string, subjectID uuid.UUID, resetToken string) error
}

// LogNotifier only records that a reset was requested. The token itself is
// never written to the log.
type LogNotifier struct {
	Log *zap.Logger
}

// NewLogNotifier constructs a LogNotifier; a nil logger is replaced by a no-op one.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{Log: log}
}

func (n *LogNotifier) PasswordReset(_ context.Context, email string, subjectID uuid.UUID, resetToken string) error {
	n.Log.Info("password reset requested",
		zap.String("email", email),
		zap.String("subject_id", subjectID.String()),
		zap.Int("token_len", len(resetToken)),
	)
	return nil
}
