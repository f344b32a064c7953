// Package notify holds the status side channels a countdown reports to.
package notify

import (
	"github.com/goforbroke1006/stagechain"
)

// Multi fans every call out to all notifiers, in order.
type Multi []stagechain.Notifier

var _ stagechain.Notifier = Multi(nil)

func (m Multi) UpdateStatus(channelID, text string) {
	for _, n := range m {
		n.UpdateStatus(channelID, text)
	}
}

func (m Multi) ShowPersistent(channelID, title, text string) {
	for _, n := range m {
		n.ShowPersistent(channelID, title, text)
	}
}

func (m Multi) Clear(channelID string) {
	for _, n := range m {
		n.Clear(channelID)
	}
}
