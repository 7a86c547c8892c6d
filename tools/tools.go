//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools run through `go run` or are installed globally and are not tracked in
// go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - gomock mock generator for the internal/core ports
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (matches the go.mod test dependency)
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - linting (the //nolint directives in this repo target it)
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
//   Docs: https://golangci-lint.run
