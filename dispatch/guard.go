package dispatch

import (
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
)

// Policy decides what happens after a failure at the native boundary.
type Policy uint8

const (
	// PolicyDefaultReturn leaves the default value in the output slot and
	// returns to the host.
	PolicyDefaultReturn Policy = iota
	// PolicyTerminate exits the process.
	PolicyTerminate
)

func (p Policy) String() string {
	if p == PolicyTerminate {
		return "terminate"
	}
	return "default"
}

// ParsePolicy parses "default" or "terminate".
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "default":
		return PolicyDefaultReturn, true
	case "terminate":
		return PolicyTerminate, true
	}
	return PolicyDefaultReturn, false
}

// Reporter forwards boundary failures to the host console.
type Reporter func(description, function string)

// Guard runs Go code entered from native callbacks.
type Guard struct {
	report Reporter
	exit   func(int)
	policy Policy
}

// NewGuard creates a guard. report may be nil.
func NewGuard(policy Policy, report Reporter) *Guard {
	return &Guard{policy: policy, report: report, exit: os.Exit}
}

// SetExit replaces the process exit used by PolicyTerminate.
func (g *Guard) SetExit(exit func(int)) { g.exit = exit }

// Policy returns the failure policy.
func (g *Guard) Policy() Policy { return g.policy }

// Call runs fn. It reports whether fn completed without error or panic.
// Failures are logged and reported, then handled by the policy.
func (g *Guard) Call(class, method string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic at native boundary",
				zap.String("class", class),
				zap.String("method", method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			g.fail(class, method, fmt.Sprintf("panic: %v", r))
			ok = false
		}
	}()

	if err := fn(); err != nil {
		Logger().Error("call failed at native boundary",
			zap.String("class", class),
			zap.String("method", method),
			zap.Error(err))
		g.fail(class, method, err.Error())
		return false
	}
	return true
}

// Report logs and forwards err without applying the policy. It is used for
// recoverable failures that already have a defined result, such as a
// CallError returned to the host.
func (g *Guard) Report(class, method string, err error) {
	Logger().Warn("call rejected",
		zap.String("class", class),
		zap.String("method", method),
		zap.Error(err))
	if g.report != nil {
		g.report(err.Error(), qualified(class, method))
	}
}

func (g *Guard) fail(class, method, msg string) {
	if g.report != nil {
		g.report(msg, qualified(class, method))
	}
	if g.policy == PolicyTerminate {
		g.exit(1)
	}
}

func qualified(class, method string) string {
	if class == "" {
		return method
	}
	return class + "." + method
}
