// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"context"
	"fmt"
	"html"
	"time"
)

// Notifier delivers a message to an identity's email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to, subject, body string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// Message subjects.
const (
	ResetSubject        = "Password Reset Request"
	VerificationSubject = "Your Verification OTP"
)

func resetLink(base, token string) string {
	return base + "/reset-password/" + token
}

func resetMessage(link string, ttl time.Duration) (subject, body string) {
	link = html.EscapeString(link)
	body = fmt.Sprintf(`<p>You requested a password reset.</p>
<p>Click <a href="%s">here</a> to reset your password, or paste this link into your browser:</p>
<p>%s</p>
<p>This link will expire in %s.</p>`, link, link, humanDuration(ttl))
	return ResetSubject, body
}

func verificationMessage(name, code string, ttl time.Duration) (subject, body string) {
	body = fmt.Sprintf(`<p>Hello %s,</p>
<p>Your OTP is: <strong>%s</strong></p>
<p>It expires in %s.</p>`, html.EscapeString(name), html.EscapeString(code), humanDuration(ttl))
	return VerificationSubject, body
}

// humanDuration renders whole hours, whole minutes or seconds, e.g.
// "1 hour", "10 minutes", "30 seconds".
func humanDuration(d time.Duration) string {
	n, unit := int64(d/time.Minute), "minute"
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		n, unit = int64(d/time.Hour), "hour"
	case d < time.Minute || d%time.Minute != 0:
		n, unit = int64(d.Round(time.Second)/time.Second), "second"
	}
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
