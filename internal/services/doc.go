// Package services implements the business layer of keyforge. It sits
// between the HTTP handlers and the key lifecycle manager.
//
// # Architecture
//
// Services follow these principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//
// # Service Layer Responsibilities
//
//	- Translating request shapes into manager calls
//	- Publishing key events to notifiers and the event stream
//	- Structured logging of every administrative action
//
// Event delivery never affects the outcome of an operation: a transition is
// reported as successful once the manager has persisted it.
//
// # Available Services
//
//	- KeyService: key issuance, binding and maintenance
//	- HealthService: liveness, readiness and version information
//
// # Testing
//
// Services are tested against a mocked manager:
//
//	m := new(MockKeyManager)
//	m.On("Revoke", mock.Anything, "ABC").Return(rec, nil)
//	svc := NewKeyService(m, pub, logger)
package services
