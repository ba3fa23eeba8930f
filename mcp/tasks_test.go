// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"testing"
	"time"
)

func TestServerTasksLifecycle(t *testing.T) {
	tasks := newServerTasks(0, 50)
	session := &ServerSession{} // identity only; create rejects a nil session

	entry, err := tasks.create(session, "echo", Meta{}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.task.Status != TaskStatusWorking {
		t.Errorf("new task status = %q, want %q", entry.task.Status, TaskStatusWorking)
	}

	got, err := tasks.get(session, entry.task.TaskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.task.TaskID != entry.task.TaskID {
		t.Errorf("get returned task %q, want %q", got.task.TaskID, entry.task.TaskID)
	}

	tasks.finish(entry, &CallToolResult{Content: []Content{&TextContent{Text: "done"}}}, nil, nil)
	got, err = tasks.get(session, entry.task.TaskID)
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if got.task.Status != TaskStatusCompleted {
		t.Errorf("finished task status = %q, want %q", got.task.Status, TaskStatusCompleted)
	}
}

func TestServerTasksCancel(t *testing.T) {
	tasks := newServerTasks(0, 50)
	session := &ServerSession{}

	entry, err := tasks.create(session, "long-running", Meta{}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled := false
	tasks.setCancel(entry, func() { cancelled = true })

	tk, err := tasks.cancel(session, entry.task.TaskID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tk.Status != TaskStatusCancelled {
		t.Errorf("cancelled task status = %q, want %q", tk.Status, TaskStatusCancelled)
	}
	if !cancelled {
		t.Error("cancel did not invoke the task's cancel func")
	}

	if _, err := tasks.cancel(session, entry.task.TaskID); err == nil {
		t.Error("cancelling an already-cancelled task: got nil error, want one")
	}
}

func TestServerTasksGetUnknown(t *testing.T) {
	tasks := newServerTasks(0, 50)
	var session *ServerSession
	if _, err := tasks.get(session, "does-not-exist"); err == nil {
		t.Error("get on unknown task: got nil error, want one")
	}
}

func TestServerTasksGetWrongSession(t *testing.T) {
	tasks := newServerTasks(0, 50)
	owner := &ServerSession{}
	other := &ServerSession{}

	entry, err := tasks.create(owner, "echo", Meta{}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tasks.get(other, entry.task.TaskID); err == nil {
		t.Error("get from a different session: got nil error, want one")
	}
}

func TestServerTasksExpiry(t *testing.T) {
	tasks := newServerTasks(time.Millisecond, 50)
	session := &ServerSession{}

	entry, err := tasks.create(session, "echo", Meta{}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := tasks.get(session, entry.task.TaskID); err == nil {
		t.Error("get on an expired task: got nil error, want one")
	}
}

func TestServerTasksPage(t *testing.T) {
	tasks := newServerTasks(0, 2)
	session := &ServerSession{}

	var ids []string
	for i := 0; i < 5; i++ {
		entry, err := tasks.create(session, "echo", Meta{}, nil, nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, entry.task.TaskID)
	}

	seen := make(map[string]bool)
	cursor := ""
	for {
		page, err := tasks.page(session, cursor)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(page.Tasks) > 2 {
			t.Fatalf("page returned %d tasks, want at most 2", len(page.Tasks))
		}
		for _, tk := range page.Tasks {
			seen[tk.TaskID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	for _, id := range ids {
		if !seen[id] {
			t.Errorf("task %q was never returned across pages", id)
		}
	}
}
