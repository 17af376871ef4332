// Package api handles incoming HTTP requests, request validation and
// response formatting for the task endpoints. It translates HTTP concerns
// to service.TaskService calls and maps service errors to status codes.
package api
