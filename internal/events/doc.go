// Package events carries task lifecycle notifications from the service
// layer to any interested handler without coupling the two.
//
// The service emits a TaskEvent after each committed create, update or
// delete. Handlers register with an InMemoryEventEmitter; an AsyncEmitter in
// front of it moves delivery off the request path onto a worker pool.
package events
