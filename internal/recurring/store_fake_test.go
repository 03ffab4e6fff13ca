package recurring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"taskboard/internal/model"
)

// memStore is an in-memory Store that enforces the same uniqueness rules as
// the sqlite schema and can fail selected calls.
type memStore struct {
	mu        sync.Mutex
	tasks     []model.Task
	assignees map[string]map[string]bool
	statuses  map[string][]model.StatusOption

	// fail maps a method name to the number of calls that should fail.
	fail map[string]int
}

var errUnavailable = errors.New("store unavailable")

func newMemStore() *memStore {
	return &memStore{
		assignees: make(map[string]map[string]bool),
		statuses:  make(map[string][]model.StatusOption),
		fail:      make(map[string]int),
	}
}

func (s *memStore) failing(method string) error {
	if s.fail[method] > 0 {
		s.fail[method]--
		return fmt.Errorf("%s: %w", method, errUnavailable)
	}
	return nil
}

func (s *memStore) add(t model.Task, assignees ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	for _, u := range assignees {
		s.link(t.ID, u)
	}
}

func (s *memStore) link(taskID, userID string) {
	if s.assignees[taskID] == nil {
		s.assignees[taskID] = make(map[string]bool)
	}
	s.assignees[taskID][userID] = true
}

func (s *memStore) InsertTask(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("InsertTask"); err != nil {
		return err
	}
	for _, t := range s.tasks {
		if task.ParentTaskID == nil && t.ParentTaskID == nil && task.RecurringGroupID != nil && task.DueDate != nil &&
			eq(task.RecurringGroupID, t.RecurringGroupID) && eq(task.DueDate, t.DueDate) {
			return ErrInstanceExists
		}
		if task.ParentTaskID != nil && task.SourceTaskID != nil &&
			eq(task.ParentTaskID, t.ParentTaskID) && eq(task.SourceTaskID, t.SourceTaskID) {
			return ErrInstanceExists
		}
	}
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *memStore) InsertTaskAssignees(_ context.Context, taskID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("InsertTaskAssignees"); err != nil {
		return err
	}
	for _, u := range userIDs {
		s.link(taskID, u)
	}
	return nil
}

func (s *memStore) BoardStatusOptions(_ context.Context, boardID string) ([]model.StatusOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("BoardStatusOptions"); err != nil {
		return nil, err
	}
	opts := append([]model.StatusOption(nil), s.statuses[boardID]...)
	sort.Slice(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
	return opts, nil
}

func (s *memStore) MaxPosition(_ context.Context, boardID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("MaxPosition"); err != nil {
		return 0, err
	}
	top := 0
	for _, t := range s.tasks {
		if t.BoardID == boardID && t.Position > top {
			top = t.Position
		}
	}
	return top, nil
}

func (s *memStore) SubtasksWithAssignees(_ context.Context, parentTaskID string) ([]model.TaskWithAssignees, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("SubtasksWithAssignees"); err != nil {
		return nil, err
	}
	var out []model.TaskWithAssignees
	for _, t := range s.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentTaskID {
			out = append(out, model.TaskWithAssignees{Task: t, AssigneeIDs: s.assigneesOf(t.ID)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *memStore) CountOccurrences(_ context.Context, groupID, completedTaskID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("CountOccurrences"); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range s.tasks {
		if t.ParentTaskID != nil || !eq(t.RecurringGroupID, &groupID) {
			continue
		}
		if t.SourceTaskID != nil && *t.SourceTaskID == completedTaskID {
			continue
		}
		n++
	}
	return n, nil
}

func (s *memStore) FindExistingInstance(_ context.Context, groupID, dueDate string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("FindExistingInstance"); err != nil {
		return "", false, err
	}
	for _, t := range s.tasks {
		if t.ParentTaskID == nil && eq(t.RecurringGroupID, &groupID) && eq(t.DueDate, &dueDate) {
			return t.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) assigneesOf(taskID string) []string {
	var ids []string
	for u := range s.assignees[taskID] {
		ids = append(ids, u)
	}
	sort.Strings(ids)
	return ids
}

func (s *memStore) task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// instances returns top-level tasks of the group due on dueDate.
func (s *memStore) instances(groupID, dueDate string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.ParentTaskID == nil && eq(t.RecurringGroupID, &groupID) && eq(t.DueDate, &dueDate) {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) children(parentID string) []model.TaskWithAssignees {
	subs, _ := s.SubtasksWithAssignees(context.Background(), parentID)
	return subs
}

func eq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptr[T any](v T) *T { return &v }

// seqIDs returns a generator of predictable ids.
func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
