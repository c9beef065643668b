// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendReset(ctx context.Context, email, resetURL string) error
}

// LogMailer records reset links in the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

// SendReset logs the recipient. The link itself is not logged.
func (m LogMailer) SendReset(ctx context.Context, email, _ string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset link issued", "email", email)
	return nil
}
