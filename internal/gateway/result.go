package gateway

// Kind classifies a failed backend call.
type Kind string

const (
	// KindTransport means the request never produced an HTTP response (dial, timeout, cancellation).
	KindTransport Kind = "transport"
	// KindApplication means the backend answered with a failure or an unreadable body.
	KindApplication Kind = "application"
)

// GenericMessage is shown when nothing more specific is known.
const GenericMessage = "An unexpected error occurred. Please try again later."

// Failure describes why a backend call did not succeed. Message is never empty.
type Failure struct {
	Kind       Kind
	Message    string
	StatusCode int
}

func (f Failure) Error() string {
	return f.Message
}

// Result is the normalized outcome of a backend call: either data or a Failure.
type Result[T any] struct {
	ok      bool
	data    T
	failure Failure
}

// Success wraps a successful payload.
func Success[T any](data T) Result[T] {
	return Result[T]{ok: true, data: data}
}

// Fail wraps a failure, filling in the generic message when none is supplied.
func Fail[T any](f Failure) Result[T] {
	if f.Message == "" {
		f.Message = GenericMessage
	}
	if f.Kind == "" {
		f.Kind = KindApplication
	}
	return Result[T]{failure: f}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.ok
}

// Data returns the payload of a successful call.
func (r Result[T]) Data() (T, bool) {
	return r.data, r.ok
}

// Err returns the failure of an unsuccessful call.
func (r Result[T]) Err() (Failure, bool) {
	return r.failure, !r.ok
}
