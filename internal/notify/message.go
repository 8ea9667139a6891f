package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/benchforge/workbench/internal/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.TaskStatus]string{
	models.TaskSucceeded: ":white_check_mark:",
	models.TaskFailed:    ":x:",
	models.TaskCanceled:  ":no_entry_sign:",
}

var statusLabel = map[models.TaskStatus]string{
	models.TaskSucceeded: "Task Succeeded",
	models.TaskFailed:    "Task Failed",
	models.TaskCanceled:  "Task Canceled",
}

func taskURL(taskID, dashboardURL string) string {
	return fmt.Sprintf("%s/tasks/%s", dashboardURL, taskID)
}

// BuildApprovalMessage builds the Block Kit payload for a
// waiting_approval notification.
func BuildApprovalMessage(task *models.Task, stepID, dashboardURL string) []goslack.Block {
	url := taskURL(task.ID, dashboardURL)
	text := fmt.Sprintf(":raised_hand: *Approval needed* for step `%s`\n*Goal:* %s\n<%s|Review in Dashboard>",
		stepID, truncateForSlack(task.Goal), url)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildTerminalMessage builds the Block Kit payload for a terminal
// status notification (succeeded, failed, or canceled).
func BuildTerminalMessage(task *models.Task, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[task.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[task.Status]
	if label == "" {
		label = "Task " + string(task.Status)
	}

	headerText := fmt.Sprintf("%s *%s*\n*Goal:* %s", emoji, label, truncateForSlack(task.Goal))
	if task.Status == models.TaskFailed && task.Error != "" {
		headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(task.Error))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	url := taskURL(task.ID, dashboardURL)
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Task", false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full task in dashboard)_"
}
