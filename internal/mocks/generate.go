// Package mocks provides mock implementations of the worker runtime ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. The mocks are generated using go:generate directives.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	d := mocks.NewMockDispatcher(ctrl)
//	d.EXPECT().UpdateStatus(gomock.Any(), "42", model.JobStatusInProgress).Return(nil)
package mocks

// Generate mock for Dispatcher interface from internal/core package.
// This creates MockDispatcher with methods for all Dispatcher interface methods:
// FetchNextPending, InsertEvent, UpdateStatus, MarkHandled
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatcher_mock.go github.com/target/mammoth/internal/core Dispatcher

// Generate mock for OutcomeStore interface from internal/core package.
// This creates MockOutcomeStore with methods for all OutcomeStore interface methods:
// Push, Pop, List, Len
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=outcome_store_mock.go github.com/target/mammoth/internal/core OutcomeStore
