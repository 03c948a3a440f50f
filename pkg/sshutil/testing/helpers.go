package testing

// WithOutputs registers plain output responses keyed by exact command.
func WithOutputs(session *MockSession, outputs map[string]string) *MockSession {
	for cmd, out := range outputs {
		session.SetResponse(cmd, CommandResponse{Output: out})
	}
	return session
}

// WithError makes every command on session fail with err.
func WithError(session *MockSession, err error) *MockSession {
	session.SetResponse(".*", CommandResponse{Error: err})
	return session
}
