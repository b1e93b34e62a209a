package billing

import "fmt"

// Outcome is the result of one backend call: either a success payload or the
// backend's failure code, never both.
type Outcome[T any] struct {
	payload T
	code    ResponseCode
	failed  bool
}

func Success[T any](payload T) Outcome[T] {
	return Outcome[T]{payload: payload, code: OK}
}

func Failure[T any](code ResponseCode) Outcome[T] {
	return Outcome[T]{code: code, failed: true}
}

func (o Outcome[T]) Failed() bool {
	return o.failed
}

// Payload returns the success payload. It is the zero value on failure.
func (o Outcome[T]) Payload() T {
	return o.payload
}

// Code returns the backend's response code, OK for a success.
func (o Outcome[T]) Code() ResponseCode {
	return o.code
}

// Err returns a *ResponseError for a failed outcome and nil otherwise.
func (o Outcome[T]) Err() error {
	if !o.failed {
		return nil
	}
	return &ResponseError{Code: o.code}
}

// Match calls exactly one of onSuccess or onFailure.
func (o Outcome[T]) Match(onSuccess func(T), onFailure func(ResponseCode)) {
	if o.failed {
		onFailure(o.code)
		return
	}
	onSuccess(o.payload)
}

func (o Outcome[T]) String() string {
	if o.failed {
		return fmt.Sprintf("Failure(%s)", o.code)
	}
	return fmt.Sprintf("Success(%v)", o.payload)
}

type (
	PurchasesUpdate       = Outcome[[]*Purchase]
	PurchasesResult       = Outcome[[]*Purchase]
	SkuDetailsResult      = Outcome[[]*SkuDetails]
	PurchaseHistoryResult = Outcome[[]*PurchaseHistoryRecord]
	ConsumeResult         = Outcome[string]
	PurchaseResult        = Outcome[struct{}]
)

func listOutcome[T any](code ResponseCode, items []T) Outcome[[]T] {
	if code != OK {
		return Failure[[]T](code)
	}
	if items == nil {
		items = []T{}
	}
	return Success(items)
}

func launchOutcome(code ResponseCode) PurchaseResult {
	if code != OK {
		return Failure[struct{}](code)
	}
	return Success(struct{}{})
}

type ConnectionStatus uint8

const (
	ConnectionStatusUnknown ConnectionStatus = iota
	ConnectionStatusConnected
	ConnectionStatusFailed
	ConnectionStatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionStatusConnected:
		return "connected"
	case ConnectionStatusFailed:
		return "failed"
	case ConnectionStatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionEvent is emitted on a Connect stream. Code is only meaningful when
// Status is ConnectionStatusFailed.
type ConnectionEvent struct {
	Status ConnectionStatus
	Code   ResponseCode
}

func (e ConnectionEvent) String() string {
	if e.Status == ConnectionStatusFailed {
		return fmt.Sprintf("failed(%s)", e.Code)
	}
	return e.Status.String()
}

func setupEvent(code ResponseCode) ConnectionEvent {
	if code != OK {
		return ConnectionEvent{Status: ConnectionStatusFailed, Code: code}
	}
	return ConnectionEvent{Status: ConnectionStatusConnected}
}
