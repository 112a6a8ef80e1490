package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const TasksTable = "lead_tasks"

// TaskType categorizes follow-up tasks. Call, email and text are contact
// attempts and are subject to DNC enforcement.
type TaskType string

const (
	TaskTypeCall    TaskType = "call"
	TaskTypeEmail   TaskType = "email"
	TaskTypeText    TaskType = "text"
	TaskTypeMeeting TaskType = "meeting"
	TaskTypeOther   TaskType = "other"
)

// Valid reports whether the value is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCall, TaskTypeEmail, TaskTypeText, TaskTypeMeeting, TaskTypeOther:
		return true
	}
	return false
}

// IsContactAttempt reports whether the task type reaches out to the lead.
func (t TaskType) IsContactAttempt() bool {
	switch t {
	case TaskTypeCall, TaskTypeEmail, TaskTypeText:
		return true
	}
	return false
}

// Task statuses.
const (
	TaskStatusOpen      = "open"
	TaskStatusCompleted = "completed"
)

// Task is a follow-up item on a lead.
type Task struct {
	TaskID      uuid.UUID  `db:"task_id"`
	LeadID      uuid.UUID  `db:"lead_id"`
	Type        TaskType   `db:"task_type"`
	Status      string     `db:"status"`
	DueAt       time.Time  `db:"due_at"`
	CreatedBy   uuid.UUID  `db:"created_by"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// ErrTaskNotFound indicates a missing task record.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore provides access to lead tasks. Every mutation recomputes the
// owning lead's next_follow_up_at inside the same transaction, so the
// derived field can never drift from the task table.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a store; assumes migrations already created the table.
func NewTaskStore(pool *pgxpool.Pool) (*TaskStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TaskStore{pool: pool}, nil
}

const taskColumns = "task_id, lead_id, task_type, status, due_at, created_by, created_at, completed_at"

// CreateTaskParams captures the fields required to insert a task.
type CreateTaskParams struct {
	TaskID    uuid.UUID
	LeadID    uuid.UUID
	Type      TaskType
	DueAt     time.Time
	CreatedBy uuid.UUID
}

// Create inserts an open task and recomputes the lead's follow-up pointer.
func (s *TaskStore) Create(ctx context.Context, params CreateTaskParams) (Task, error) {
	if params.TaskID == uuid.Nil {
		return Task{}, errors.New("task id is required")
	}
	if !params.Type.Valid() {
		return Task{}, fmt.Errorf("unknown task type %q", params.Type)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (task_id, lead_id, task_type, status, due_at, created_by)
        VALUES ($1, $2, $3, 'open', $4, $5)
        RETURNING %s
    `, TasksTable, taskColumns),
		params.TaskID, params.LeadID, params.Type, params.DueAt, params.CreatedBy,
	)

	task, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}

	if err = recomputeNextFollowUp(ctx, tx, params.LeadID); err != nil {
		return Task{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Get returns a task by id.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE task_id = $1
    `, taskColumns, TasksTable), id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}

	return task, nil
}

// ListForLead returns all tasks for the lead, soonest due first.
func (s *TaskStore) ListForLead(ctx context.Context, leadID uuid.UUID) ([]Task, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE lead_id = $1 ORDER BY due_at ASC
    `, taskColumns, TasksTable), leadID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// Complete marks an open task completed and recomputes the lead's follow-up
// pointer in the same transaction.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID) (Task, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET status = 'completed', completed_at = NOW()
        WHERE task_id = $1 AND status = 'open'
        RETURNING %s
    `, TasksTable, taskColumns), id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}

	if err = recomputeNextFollowUp(ctx, tx, task.LeadID); err != nil {
		return Task{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Delete removes a task and recomputes the lead's follow-up pointer in the
// same transaction.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE task_id = $1 RETURNING lead_id
    `, TasksTable), id)

	var leadID uuid.UUID
	if err = row.Scan(&leadID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return err
	}

	if err = recomputeNextFollowUp(ctx, tx, leadID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// recomputeNextFollowUp sets the lead's next_follow_up_at to the earliest
// open task's due_at, or NULL when none remain. Must run inside the same
// transaction as the triggering task mutation.
func recomputeNextFollowUp(ctx context.Context, tx pgx.Tx, leadID uuid.UUID) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET next_follow_up_at = (
            SELECT MIN(due_at) FROM %s WHERE lead_id = $1 AND status = 'open'
        ), updated_at = NOW()
        WHERE lead_id = $1
    `, LeadsTable, TasksTable), leadID)
	if err != nil {
		return fmt.Errorf("recompute next follow-up: %w", err)
	}
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var task Task

	if err := row.Scan(&task.TaskID, &task.LeadID, &task.Type, &task.Status, &task.DueAt, &task.CreatedBy, &task.CreatedAt, &task.CompletedAt); err != nil {
		return Task{}, err
	}

	return task, nil
}
