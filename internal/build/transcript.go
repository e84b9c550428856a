package build

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shirisha-ilura/UL/pkg/models"
)

func newMessageID() string {
	return uuid.NewString()
}

// appendUser records one user message. User input is always appended;
// sending the same text twice is two turns.
func (s *Session) appendUser(content string) {
	s.transcript = append(s.transcript, models.ChatMessage{
		ID:        newMessageID(),
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// appendAgent records one agent message unless it repeats the content
// of the last transcript entry. Snapshots re-deliver the same
// message_to_user tail across polling cycles and the architect issues
// no message ids, so content equality against the newest entry is the
// deduplication rule.
func (s *Session) appendAgent(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if n := len(s.transcript); n > 0 && s.transcript[n-1].Content == content {
		return
	}
	s.transcript = append(s.transcript, models.ChatMessage{
		ID:        newMessageID(),
		Role:      models.RoleAgent,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// hasAnnouncement reports whether the completion announcement is
// already in the transcript. Guards against a second simulator run
// announcing twice.
func (s *Session) hasAnnouncement() bool {
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Role == models.RoleAgent && strings.Contains(s.transcript[i].Content, completionMarker) {
			return true
		}
	}
	return false
}

// announceCompletion posts the capability announcement once the
// provisioning progress reaches the end. Caller holds the lock.
func (s *Session) announceCompletion() {
	if s.hasAnnouncement() {
		return
	}
	s.appendAgent(composeAnnouncement(s.config, s.registry))
	s.updatedAt = time.Now().UTC()
}
