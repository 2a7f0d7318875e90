package audit

// Service is the producer-facing API: AuditService::log(entry) from the
// spec. It wraps a Dispatcher so callers never see the queueing mechanics.
// Per, the audit service is one of the process-wide singletons — callers
// obtain it once at composition-root time and pass it down, rather than
// constructing their own.
type Service struct {
	dispatcher *Dispatcher
}

// NewService wraps a started Dispatcher as the producer-facing Service.
func NewService(dispatcher *Dispatcher) *Service {
	return &Service{dispatcher: dispatcher}
}

// Log dispatches a fully-built Entry. Non-blocking.
func (s *Service) Log(entry Entry) {
	s.dispatcher.Log(entry)
}

// LogBuilder finalizes and dispatches a Builder in one call, e.g.
// audit.LogBuilder(svc, audit.NewEntry(audit.EventOrgCreated).Actor(userID).Resource("org", orgID)).
func LogBuilder(svc *Service, b *Builder) {
	svc.Log(b.Build())
}
