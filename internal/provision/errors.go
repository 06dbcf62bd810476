package provision

import (
	"github.com/juju/errors"
)

// Failure kinds. Every session that does not succeed ends with exactly one
// of these as the root of its error chain.
const (
	NoPortFound          = errors.ConstError("no port found")
	AmbiguousPort        = errors.ConstError("ambiguous port")
	InvalidVersionFormat = errors.ConstError("invalid version format")
	BurnFailed           = errors.ConstError("burn failed")
	BurnVerifyMismatch   = errors.ConstError("burn verify mismatch")
	NoExistingIdentity   = errors.ConstError("no existing identity")
	NoCompatibleFirmware = errors.ConstError("no compatible firmware")
	NetworkError         = errors.ConstError("network error")
	FlashToolError       = errors.ConstError("flash tool error")
	FlashUnexpected      = errors.ConstError("flash unexpected error")
	ReadyTimeout         = errors.ConstError("ready timeout")
	DeviceNotFound       = errors.ConstError("device not found")
	ConnectFailed        = errors.ConstError("connect failed")
	TestInvokeFailed     = errors.ConstError("test invoke failed")
	TestTimeout          = errors.ConstError("test timeout")
	QCFailed             = errors.ConstError("qc failed")
	Cancelled            = errors.ConstError("cancelled")
)

// kinds is ordered by exit code.
var kinds = []errors.ConstError{
	NoPortFound,
	AmbiguousPort,
	InvalidVersionFormat,
	BurnFailed,
	BurnVerifyMismatch,
	NoExistingIdentity,
	NoCompatibleFirmware,
	NetworkError,
	FlashToolError,
	FlashUnexpected,
	ReadyTimeout,
	DeviceNotFound,
	ConnectFailed,
	TestInvokeFailed,
	TestTimeout,
	QCFailed,
	Cancelled,
}

// firstKindExitCode is the exit code of NoPortFound; the rest follow in
// declaration order.
const firstKindExitCode = 10

type failure struct {
	kind  errors.ConstError
	cause error
}

func (f *failure) Error() string {
	if f.cause == nil {
		return string(f.kind)
	}
	return string(f.kind) + ": " + f.cause.Error()
}

func (f *failure) Is(target error) bool {
	k, ok := target.(errors.ConstError)
	return ok && k == f.kind
}

func (f *failure) Unwrap() error { return f.cause }

// Wrap tags cause with a failure kind, keeping the cause text for
// diagnostics. A nil cause yields the bare kind.
func Wrap(kind errors.ConstError, cause error) error {
	if cause == nil {
		return kind
	}
	return &failure{kind: kind, cause: cause}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind errors.ConstError, format string, args ...interface{}) error {
	return &failure{kind: kind, cause: errors.Errorf(format, args...)}
}

// Kind returns the failure kind at the root of err, or "" when err does
// not carry one.
func Kind(err error) errors.ConstError {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ""
}

// ExitCode maps an error to a process exit code: 0 for nil, a stable code
// per failure kind, 1 for anything untagged.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	k := Kind(err)
	for i, candidate := range kinds {
		if candidate == k {
			return firstKindExitCode + i
		}
	}
	return 1
}
