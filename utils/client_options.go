package utils

// ClientOptions carries the logging callbacks shared by every component.
// Callbacks may be nil; use WithDefaults() to get a copy that is safe to
// invoke directly.
type ClientOptions struct {
	DebugLog  func(msg string) `json:"-" yaml:"-"`
	OnWarning func(msg string) `json:"-" yaml:"-"`
	OnError   func(err error)  `json:"-" yaml:"-"`
}

func (o ClientOptions) WithDefaults() ClientOptions {
	if o.DebugLog == nil {
		o.DebugLog = func(string) {}
	}
	if o.OnWarning == nil {
		o.OnWarning = func(string) {}
	}
	if o.OnError == nil {
		o.OnError = func(error) {}
	}
	return o
}
