package circuitbreaker

import (
	"context"
	"fmt"

	"github.com/afex/hystrix-go/hystrix"
)

type FallbackFunc func() ([]any, error)

// FunctorCallStatus records the outcome of one executed functor.
type FunctorCallStatus struct {
	name string
	err  error
}

// Name returns the circuit the functor executed under.
func (s FunctorCallStatus) Name() string {
	return s.name
}

// Err returns the functor's raw error, nil on success.
func (s FunctorCallStatus) Err() error {
	return s.err
}

type CommandResult struct {
	res                 []any
	err                 error
	cancelled           bool
	functorCallStatuses []FunctorCallStatus
}

func (cr CommandResult) Result() []any {
	return cr.res
}

func (cr CommandResult) Error() error {
	return cr.err
}

func (cr CommandResult) Cancelled() bool {
	return cr.cancelled
}

// FunctorCallStatuses lists the executed functors in order with their
// raw errors, before accumulation.
func (cr CommandResult) FunctorCallStatuses() []FunctorCallStatus {
	return cr.functorCallStatuses
}

func (cr *CommandResult) addCallStatus(circuitName string, err error) {
	cr.functorCallStatuses = append(cr.functorCallStatuses, FunctorCallStatus{
		name: circuitName,
		err:  err,
	})
}

type Command struct {
	ctx      context.Context
	functors []*Functor
	cancel   bool
}

func NewCommand(ctx context.Context, functors []*Functor) *Command {
	return &Command{
		ctx:      ctx,
		functors: functors,
	}
}

func (cmd *Command) Add(ftor *Functor) {
	cmd.functors = append(cmd.functors, ftor)
}

func (cmd *Command) IsEmpty() bool {
	return len(cmd.functors) == 0
}

// Cancel stops the fallback chain before its next functor runs. Meant
// to be called from within a functor; the result reports Cancelled.
func (cmd *Command) Cancel() {
	cmd.cancel = true
}

type Config struct {
	Timeout                int
	MaxConcurrentRequests  int
	RequestVolumeThreshold int
	SleepWindow            int
	ErrorPercentThreshold  int
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
	}
}

type Functor struct {
	exec        FallbackFunc
	circuitName string
}

func NewFunctor(exec FallbackFunc, circuitName string) *Functor {
	return &Functor{
		exec:        exec,
		circuitName: circuitName,
	}
}

// CircuitExists reports whether a circuit was configured under name.
func CircuitExists(circuitName string) bool {
	_, exists := hystrix.GetCircuitSettings()[circuitName]
	return exists
}

// IsCircuitOpen reports whether the named circuit currently rejects
// traffic.
func IsCircuitOpen(circuitName string) bool {
	circuit, wasCreated, err := hystrix.GetCircuit(circuitName)
	return err == nil && !wasCreated && circuit.IsOpen()
}

// Executes the command's functors in order until one succeeds.
// Every functor but the last runs inside its named circuit; the last
// one executes directly, so the terminal fallback is never rejected by
// an open circuit. This is a blocking function.
func (cb *CircuitBreaker) Execute(cmd *Command) CommandResult {
	if cmd == nil || cmd.IsEmpty() {
		return CommandResult{err: fmt.Errorf("command is nil or empty")}
	}

	var result CommandResult
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for i, f := range cmd.functors {
		if cmd.cancel {
			result.cancelled = true
			break
		}

		var res []any
		var err error
		if i == len(cmd.functors)-1 {
			res, err = f.exec()
		} else {
			if hystrix.GetCircuitSettings()[f.circuitName] == nil {
				hystrix.ConfigureCommand(f.circuitName, hystrix.CommandConfig{
					Timeout:                cb.config.Timeout,
					MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
					RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
					SleepWindow:            cb.config.SleepWindow,
					ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
				})
			}

			err = hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
				r, execErr := f.exec()
				// Write only on success, a timed-out functor may still
				// finish later.
				if execErr == nil {
					res = r
				}
				return execErr
			}, nil)
		}

		result.addCallStatus(f.circuitName, err)

		if err == nil {
			result.res = res
			result.err = nil
			break
		}

		// Accumulate errors
		if result.err != nil {
			result.err = fmt.Errorf("%w, %s.error: %w", result.err, f.circuitName, err)
		} else {
			result.err = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
		// Every endpoint gets the same MaxConcurrentRequests, so keep
		// iterating even on ErrMaxConcurrency.
	}

	if cmd.cancel {
		result.cancelled = true
	}

	return result
}
