// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/corerpc/mcp/internal/jsonrpc2"
	"github.com/corerpc/mcp/jsonrpc"
)

// TaskStatus is the lifecycle state of a long-running task, per §3's Task
// lifecycle.
type TaskStatus string

const (
	TaskStatusWorking   TaskStatus = "working"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskRequest augments a call with a request to run it as a long-running
// task rather than be answered inline; it is CallToolParams.Task.
type TaskRequest struct {
	// TTL bounds, in milliseconds, how long the result of a completed task
	// remains retrievable. Nil means the server's default.
	TTL *int64 `json:"ttl,omitempty"`
}

// Task is the polled/pushed representation of a long-running operation.
type Task struct {
	Meta          Meta       `json:"_meta,omitempty"`
	TaskID        string     `json:"taskId"`
	Status        TaskStatus `json:"status"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	CreatedAt     string     `json:"createdAt"`
	LastUpdatedAt string     `json:"lastUpdatedAt"`
	TTL           *int64     `json:"ttl"`
}

// GetTaskParams names a task by id.
type GetTaskParams struct {
	params
	TaskID string `json:"taskId"`
}

// GetTaskResult is the current state of a task.
type GetTaskResult Task

func (*GetTaskResult) isResult() {}

// ListTasksParams pages through the calling session's tasks.
type ListTasksParams struct {
	params
	Cursor string `json:"cursor,omitempty"`
}

// ListTasksResult is one page of a session's tasks.
type ListTasksResult struct {
	Meta       Meta    `json:"_meta,omitempty"`
	Tasks      []*Task `json:"tasks"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

func (*ListTasksResult) isResult() {}

// CancelTaskParams names a task to cancel.
type CancelTaskParams struct {
	params
	TaskID string `json:"taskId"`
}

// CancelTaskResult is the task's state immediately after cancellation.
type CancelTaskResult Task

func (*CancelTaskResult) isResult() {}

// TaskResultParams names a task whose result the caller wants to block on.
type TaskResultParams struct {
	params
	TaskID string `json:"taskId"`
}

// methodTaskStatus is the notification method used to push a
// [TaskStatusNotificationParams] to the session that created the task.
const methodTaskStatus = "notifications/tasks/status"

// TaskStatusNotificationParams reports a task's status, pushed to the
// session that created it whenever the status changes.
type TaskStatusNotificationParams Task

func (TaskStatusNotificationParams) isParams()             {}
func (TaskStatusNotificationParams) GetProgressToken() any { return nil }
func (TaskStatusNotificationParams) SetProgressToken(any)  {}
func (p TaskStatusNotificationParams) GetMeta() Meta       { return p.Meta }

// serverTasks tracks every in-flight and recently-finished task created by
// tools/call on one [Server], across all of its sessions.
type serverTasks struct {
	mu    sync.Mutex
	next  uint64
	tasks map[string]*serverTaskEntry

	defaultTTL time.Duration
	pageSize   int
}

type serverTaskEntry struct {
	seq     uint64
	session *ServerSession
	meta    Meta
	args    []byte
	name    string

	task      Task
	expiresAt *time.Time

	cancel context.CancelFunc
	done   chan struct{}

	result *CallToolResult
	err    error
}

func newServerTasks(defaultTTL time.Duration, pageSize int) *serverTasks {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &serverTasks{tasks: make(map[string]*serverTaskEntry), defaultTTL: defaultTTL, pageSize: pageSize}
}

func newTaskID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func (s *serverTasks) create(session *ServerSession, name string, meta Meta, args []byte, tr *TaskRequest) (*serverTaskEntry, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: missing session", jsonrpc2.ErrInvalidRequest)
	}
	taskID, err := newTaskID()
	if err != nil {
		return nil, fmt.Errorf("%w: generating task id: %v", jsonrpc2.ErrInternal, err)
	}

	now := time.Now().UTC()
	createdAt := now.Format(time.RFC3339)

	ttl := s.defaultTTL
	if tr != nil && tr.TTL != nil {
		ttl = time.Duration(*tr.TTL) * time.Millisecond
	}
	var ttlMillis *int64
	var expiresAt *time.Time
	if ttl > 0 {
		v := ttl.Milliseconds()
		ttlMillis = &v
		exp := now.Add(ttl)
		expiresAt = &exp
	}

	e := &serverTaskEntry{
		session: session,
		meta:    meta,
		args:    append([]byte(nil), args...),
		name:    name,
		task: Task{
			TaskID:        taskID,
			Status:        TaskStatusWorking,
			StatusMessage: "The operation is now in progress.",
			CreatedAt:     createdAt,
			LastUpdatedAt: createdAt,
			TTL:           ttlMillis,
		},
		expiresAt: expiresAt,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.next++
	e.seq = s.next
	s.tasks[taskID] = e
	s.mu.Unlock()
	return e, nil
}

func (s *serverTasks) setCancel(entry *serverTaskEntry, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[entry.task.TaskID]; ok {
		cur.cancel = cancel
	}
}

func (s *serverTasks) finish(entry *serverTaskEntry, res *CallToolResult, err error, notify func(Task)) {
	s.mu.Lock()
	cur := s.tasks[entry.task.TaskID]
	if cur == nil {
		s.mu.Unlock()
		return
	}
	cur.result = res
	cur.err = err
	if cur.task.Status != TaskStatusCancelled {
		now := time.Now().UTC().Format(time.RFC3339)
		cur.task.LastUpdatedAt = now
		switch {
		case err != nil:
			cur.task.Status = TaskStatusFailed
			cur.task.StatusMessage = err.Error()
		case res != nil && res.IsError:
			cur.task.Status = TaskStatusFailed
			cur.task.StatusMessage = "tool execution failed"
		default:
			cur.task.Status = TaskStatusCompleted
			cur.task.StatusMessage = ""
		}
	}
	t := cur.task
	s.mu.Unlock()
	if notify != nil {
		notify(t)
	}
}

func (s *serverTasks) get(session *ServerSession, taskID string) (*serverTaskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.tasks[taskID]
	if e == nil || e.session != session {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "task not found"}
	}
	if e.expiresAt != nil && time.Now().After(*e.expiresAt) {
		delete(s.tasks, taskID)
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "task has expired"}
	}
	return e, nil
}

func (s *serverTasks) listForSession(session *ServerSession) []*serverTaskEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*serverTaskEntry
	now := time.Now()
	for id, e := range s.tasks {
		if e.session != session {
			continue
		}
		if e.expiresAt != nil && now.After(*e.expiresAt) {
			delete(s.tasks, id)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *serverTasks) cancel(session *ServerSession, taskID string) (Task, error) {
	s.mu.Lock()
	cur := s.tasks[taskID]
	if cur == nil || cur.session != session {
		s.mu.Unlock()
		return Task{}, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "task not found"}
	}
	switch cur.task.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		s.mu.Unlock()
		return Task{}, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("cannot cancel task: already %q", cur.task.Status)}
	}
	cur.task.Status = TaskStatusCancelled
	cur.task.StatusMessage = "The task was cancelled by request."
	cur.task.LastUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	cancel := cur.cancel
	t := cur.task
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return t, nil
}

func encodeTaskCursor(seq uint64) string   { return strconv.FormatUint(seq, 10) }
func decodeTaskCursor(c string) (uint64, error) {
	if c == "" {
		return 0, nil
	}
	return strconv.ParseUint(c, 10, 64)
}

// page pages s's in-memory task set the way [Server]'s
// tasks/list handler reports it, sorted by creation order.
func (s *serverTasks) page(session *ServerSession, cursor string) (*ListTasksResult, error) {
	start, err := decodeTaskCursor(cursor)
	if err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid cursor"}
	}
	entries := s.listForSession(session)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	begin := 0
	if start != 0 {
		for i, e := range entries {
			if e.seq == start {
				begin = i + 1
				break
			}
		}
		if begin == 0 {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "invalid cursor"}
		}
	}
	end := begin + s.pageSize
	if end > len(entries) {
		end = len(entries)
	}
	res := &ListTasksResult{Tasks: []*Task{}}
	for _, e := range entries[begin:end] {
		t := e.task
		res.Tasks = append(res.Tasks, &t)
	}
	if end < len(entries) {
		res.NextCursor = encodeTaskCursor(entries[end-1].seq)
	}
	return res, nil
}
