// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file holds the request types.

package mcp

type (
	CallToolRequest                    = ServerRequest[*CallToolParams]
	CancelTaskRequest                  = ServerRequest[*CancelTaskParams]
	GetTaskRequest                     = ServerRequest[*GetTaskParams]
	InitializedRequest                 = ServerRequest[*InitializedParams]
	ListTasksRequest                   = ServerRequest[*ListTasksParams]
	PingServerRequest                  = ServerRequest[*PingParams]
	ProgressNotificationServerRequest  = ServerRequest[*ProgressNotificationParams]
	SetLoggingLevelRequest             = ServerRequest[*SetLoggingLevelParams]
	TaskResultRequest                  = ServerRequest[*TaskResultParams]
	TaskStatusNotificationServerRequest = ServerRequest[*TaskStatusNotificationParams]
)

type (
	InitializeRequest                 = ClientRequest[*InitializeParams]
	LoggingMessageRequest             = ClientRequest[*LoggingMessageParams]
	PingClientRequest                 = ClientRequest[*PingParams]
	ProgressNotificationClientRequest = ClientRequest[*ProgressNotificationParams]
	TaskStatusNotificationRequest     = ClientRequest[*TaskStatusNotificationParams]
)
