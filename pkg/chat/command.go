package chat

import "github.com/arnavshah/timetable-wizard-go/pkg/merge"

// Command is an instruction recognized in a user turn instead of being sent on.
type Command int

const (
	CommandNone Command = iota
	// CommandCommit imports the latest extracted batch.
	CommandCommit
)

var commands = map[string]Command{
	"ok": CommandCommit,
}

// Recognize matches the whole trimmed, case-folded text against the command words.
func Recognize(text string) Command {
	return commands[merge.Normalize(text)]
}
