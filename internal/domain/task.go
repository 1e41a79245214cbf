package domain

import (
	"encoding/json"
	"fmt"
)

// QueueName identifies one of the logical work queues
type QueueName string

const (
	QueueTraverse QueueName = "traverse"
	QueueArchive  QueueName = "archive"
)

// TaskKind tags the payload carried by a Task
type TaskKind string

const (
	TaskTraverse TaskKind = "traverse_channel"
	TaskArchive  TaskKind = "archive_message"
)

// TraverseTask asks the traversal engine to walk one channel in one direction
type TraverseTask struct {
	ChannelID string    `json:"channel_id"`
	Direction Direction `json:"direction"`
}

// DedupKey identifies traversals that must not be queued twice at once
func (t TraverseTask) DedupKey() string {
	return t.ChannelID + ":" + string(t.Direction)
}

// Task is a queue payload. Exactly one of Traverse and Archive is set,
// matching Kind.
type Task struct {
	Kind     TaskKind         `json:"kind"`
	Traverse *TraverseTask    `json:"traverse,omitempty"`
	Archive  *ArchiveWorkItem `json:"archive,omitempty"`
}

// NewTraverseTask wraps a traversal request
func NewTraverseTask(channelID string, direction Direction) Task {
	return Task{
		Kind:     TaskTraverse,
		Traverse: &TraverseTask{ChannelID: channelID, Direction: direction},
	}
}

// NewArchiveTask wraps an archive work item
func NewArchiveTask(item ArchiveWorkItem) Task {
	return Task{Kind: TaskArchive, Archive: &item}
}

// Queue returns the logical queue the task belongs to
func (t Task) Queue() QueueName {
	if t.Kind == TaskTraverse {
		return QueueTraverse
	}
	return QueueArchive
}

// DedupKey returns the deduplication key, empty when duplicates are allowed
func (t Task) DedupKey() string {
	if t.Kind == TaskTraverse && t.Traverse != nil {
		return t.Traverse.DedupKey()
	}
	return ""
}

// Validate checks that the payload matches the kind
func (t Task) Validate() error {
	switch t.Kind {
	case TaskTraverse:
		if t.Traverse == nil || t.Archive != nil {
			return fmt.Errorf("traverse task must carry only a traverse payload")
		}
		if t.Traverse.ChannelID == "" {
			return fmt.Errorf("traverse task without channel id")
		}
		if !ValidateDirection(t.Traverse.Direction) {
			return fmt.Errorf("invalid direction: %s", t.Traverse.Direction)
		}
	case TaskArchive:
		if t.Archive == nil || t.Traverse != nil {
			return fmt.Errorf("archive task must carry only an archive payload")
		}
		if !t.Archive.Message.ID.Valid() {
			return fmt.Errorf("archive task with invalid message id %q", t.Archive.Message.ID)
		}
	default:
		return fmt.Errorf("unknown task kind: %q", t.Kind)
	}
	return nil
}

// EncodeTask serializes a task for a queue backend
func EncodeTask(t Task) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}
	return string(data), nil
}

// DecodeTask parses and validates a serialized task
func DecodeTask(payload string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
