package build

import (
	"fmt"
	"strings"

	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// completionMarker opens every completion announcement. The transcript
// is scanned for it to keep the announcement single-shot.
const completionMarker = "Your agent is ready"

// composeAnnouncement writes the capability announcement posted when
// provisioning finishes. The highlighted capability comes from the
// highest-priority recognized integration, then a database tool, then
// a general-purpose line naming whatever connections were asked for,
// then plain conversation. The ordering is a fixed tie-break.
func composeAnnouncement(cfg *models.AgentConfiguration, reg *catalog.Registry) string {
	if cfg == nil {
		return completionMarker + "."
	}
	name := cfg.Name
	if name == "" {
		name = "Your new agent"
	}
	conns := cfg.Connections()
	capability := "hold an intelligent conversation"
	if prioritized := reg.ByPriority(conns); len(prioritized) > 0 {
		capability = prioritized[0].Capability
	} else if reg.HasDatabaseTool(cfg.ToolsToActivate) {
		capability = "answer questions from your connected database"
	} else if len(conns) > 0 {
		capability = "work as a general-purpose assistant across " + strings.Join(conns, ", ")
	}
	return fmt.Sprintf("%s! %s can now %s.", completionMarker, name, capability)
}

// buildSteps names the provisioning stages the progress panel walks
// through. Purely cosmetic, but derived from the configuration so the
// labels match what the user asked for.
func buildSteps(cfg *models.AgentConfiguration, reg *catalog.Registry) []string {
	steps := []string{
		"Analyzing requirements",
		"Provisioning reasoning engine",
		"Attaching memory",
	}
	if cfg != nil {
		for _, in := range reg.Recognized(cfg.Connections()) {
			steps = append(steps, "Connecting "+in.Label)
		}
		if reg.HasDatabaseTool(cfg.ToolsToActivate) {
			steps = append(steps, "Wiring database access")
		}
	}
	steps = append(steps, "Running smoke checks", "Finishing up")
	return steps
}

// failureMessage picks the banner for a terminal failure, preferring
// whatever the server said.
func failureMessage(snap *models.BuildSession) string {
	if msg := snap.LatestMessageToUser(); msg != "" {
		return msg
	}
	return "The build failed. Start a new build to try again."
}

// connectionFailureNotice picks the notice shown inside the reopened
// credential form after a rejected connection string.
func connectionFailureNotice(snap *models.BuildSession) string {
	if msg := snap.LatestMessageToUser(); msg != "" {
		return msg
	}
	return "Could not connect to the database. Check the credentials and try again."
}
