package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask("  Write report  ", TaskStatusOpen, 7)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.Title != "Write report" {
		t.Errorf("Expected trimmed title, got %q", task.Title)
	}
	if task.Status != TaskStatusOpen {
		t.Errorf("Expected status %s, got %s", TaskStatusOpen, task.Status)
	}
	if task.CreatedBy != 7 {
		t.Errorf("Expected owner 7, got %d", task.CreatedBy)
	}
	if task.ID != 0 || !task.CreatedAt.IsZero() {
		t.Error("Expected ID and CreatedAt to be left for the store")
	}

	if _, err := NewTask("   ", TaskStatusOpen, 7); !errors.Is(err, ErrEmptyTaskTitle) {
		t.Errorf("Expected %v, got %v", ErrEmptyTaskTitle, err)
	}
	if _, err := NewTask("title", "PAUSED", 7); !errors.Is(err, ErrInvalidTaskStatus) {
		t.Errorf("Expected %v, got %v", ErrInvalidTaskStatus, err)
	}
	if _, err := NewTask("title", TaskStatusDone, 0); !errors.Is(err, ErrInvalidTaskOwner) {
		t.Errorf("Expected %v, got %v", ErrInvalidTaskOwner, err)
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		task    Task
		wantErr error
	}{
		{"valid", Task{Title: "a", Status: TaskStatusInProgress, CreatedBy: 1}, nil},
		{"empty title", Task{Title: "", Status: TaskStatusOpen, CreatedBy: 1}, ErrEmptyTaskTitle},
		{"blank title", Task{Title: " \t", Status: TaskStatusOpen, CreatedBy: 1}, ErrEmptyTaskTitle},
		{"missing status", Task{Title: "a", CreatedBy: 1}, ErrInvalidTaskStatus},
		{"lowercase status", Task{Title: "a", Status: "open", CreatedBy: 1}, ErrInvalidTaskStatus},
		{"negative owner", Task{Title: "a", Status: TaskStatusClosed, CreatedBy: -3}, ErrInvalidTaskOwner},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.task.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTaskValidateContent(t *testing.T) {
	t.Parallel()

	task := Task{Title: "a", Status: TaskStatusDone}
	if err := task.ValidateContent(); err != nil {
		t.Errorf("ValidateContent() ignores the owner, got %v", err)
	}
	if err := task.Validate(); !errors.Is(err, ErrInvalidTaskOwner) {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidTaskOwner)
	}
}

func TestTaskStatusIsActive(t *testing.T) {
	t.Parallel()

	active := map[TaskStatus]bool{
		TaskStatusOpen:       true,
		TaskStatusInProgress: true,
		TaskStatusDone:       false,
		TaskStatusClosed:     false,
		"":                   false,
	}

	for status, want := range active {
		if got := status.IsActive(); got != want {
			t.Errorf("%q.IsActive() = %v, want %v", status, got, want)
		}
	}

	for _, s := range ActiveTaskStatuses() {
		if !s.IsActive() {
			t.Errorf("ActiveTaskStatuses() returned inactive status %s", s)
		}
	}
}

func TestTaskClone(t *testing.T) {
	t.Parallel()

	orig := &Task{ID: 3, Title: "a", Status: TaskStatusOpen, CreatedBy: 2, CreatedAt: time.Now().UTC()}
	c := orig.Clone()
	c.Title = "b"

	if orig.Title != "a" {
		t.Error("Clone shares state with the original")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestTimeBounds(t *testing.T) {
	t.Parallel()

	if !MinTime.Before(MaxTime) {
		t.Fatal("MinTime must be before MaxTime")
	}
	if MaxTime.Nanosecond()%1000 != 0 {
		t.Error("MaxTime must have microsecond precision")
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("id", "has invalid format", ErrInvalidID)
	if err.Error() != "id has invalid format" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidID) {
		t.Error("ValidationError should unwrap to its cause")
	}
}
