package store

import (
	"testing"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTaskFilter_Matches(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	filter := TaskFilter{UserID: 7, From: from, To: to}

	tests := []struct {
		name string
		task *domain.Task
		want bool
	}{
		{"nil task", nil, false},
		{"other user", &domain.Task{CreatedBy: 8, CreatedAt: from.Add(time.Hour)}, false},
		{"inside window", &domain.Task{CreatedBy: 7, CreatedAt: from.Add(time.Hour)}, true},
		{"at lower bound", &domain.Task{CreatedBy: 7, CreatedAt: from}, true},
		{"at upper bound", &domain.Task{CreatedBy: 7, CreatedAt: to}, true},
		{"before window", &domain.Task{CreatedBy: 7, CreatedAt: from.Add(-time.Nanosecond)}, false},
		{"after window", &domain.Task{CreatedBy: 7, CreatedAt: to.Add(time.Nanosecond)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter.Matches(tt.task))
		})
	}

	inverted := TaskFilter{UserID: 7, From: to, To: from}
	assert.False(t, inverted.Matches(&domain.Task{CreatedBy: 7, CreatedAt: from.Add(time.Hour)}))
}
