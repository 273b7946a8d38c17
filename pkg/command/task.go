package command

import "time"

// Task is the unit the task queue schedules: a command plus its submission
// metadata, per spec.md §3 Task record.
type Task struct {
	Command  Command
	Priority int
	ReadyAt  time.Time
}

// Digest identifies the task for dedup purposes. Two tasks with
// structurally equal commands share a digest regardless of priority or
// ready-at, matching spec.md's "Identity for dedup is the structural
// digest of command."
func (t Task) Digest() uint64 { return t.Command.Digest() }
