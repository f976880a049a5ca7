// Package api handles incoming HTTP requests for the task service: routing
// targets, request decoding and validation, and translation of service
// errors into HTTP status codes and error bodies.
package api
