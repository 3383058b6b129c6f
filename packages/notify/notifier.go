// Package notify announces finished fetch runs on chat webhooks.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a fetch failed
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when no fetch failed
	NotifySuccess NotifyOn = "success"
)

// ParseNotifyOn parses a policy name. An empty name means NotifyFailure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(strings.ToLower(strings.TrimSpace(s))) {
	case "", NotifyFailure:
		return NotifyFailure, nil
	case NotifyAlways:
		return NotifyAlways, nil
	case NotifySuccess:
		return NotifySuccess, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (want always, failure or success)", s)
	}
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify posts the summary of a finished run
	Notify(ctx context.Context, summary *downloader.Summary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager fans a summary out to notifiers according to its policy
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of registered notifiers
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// ShouldNotify reports whether the policy selects summary
func (m *Manager) ShouldNotify(summary *downloader.Summary) bool {
	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifySuccess:
		return !summary.HasFailures()
	default:
		return summary.HasFailures()
	}
}

// Notify sends the summary to every notifier. All notifiers are tried; the
// last error is returned.
func (m *Manager) Notify(ctx context.Context, summary *downloader.Summary) error {
	if !m.ShouldNotify(summary) {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			lastErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}
	return lastErr
}

// headline is the one-line verdict shared by all notifiers
func headline(s *downloader.Summary) string {
	if s.HasFailures() {
		return fmt.Sprintf("%d of %d fetch(es) failed", s.Failed, s.Iterations)
	}
	return fmt.Sprintf("%d fetch(es) finished", s.Iterations)
}
