package booking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing lifecycle operation.
type OperationLog struct {
	Operation string
	BookingID string
	ActorID   string
	ActorRole string
	Status    string
	Warnings  []string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithDispatcher wires the driver-offer dispatcher.
func WithDispatcher(dispatcher Dispatcher) ServiceOption {
	return func(service *Service) {
		service.dispatcher = dispatcher
	}
}

// WithNotifier wires the notification transport.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithAuditor wires the audit sink.
func WithAuditor(auditor Auditor) ServiceOption {
	return func(service *Service) {
		service.auditor = auditor
	}
}
