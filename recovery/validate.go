package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/tidwall/gjson"
)

// Validator checks one aspect of a successful output. The name is used when
// aggregating rejection reasons into corrective context.
type Validator struct {
	Name  string
	Check func(output string) error
}

// NotEmpty rejects blank output.
func NotEmpty() Validator {
	return Validator{
		Name: "notEmpty",
		Check: func(output string) error {
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("output is empty")
			}
			return nil
		},
	}
}

var refusalPhrases = []string{
	"i can't help with",
	"i cannot help with",
	"i can't assist with",
	"i cannot assist with",
	"i'm unable to help",
	"i am unable to help",
	"as an ai, i cannot",
}

// NoRefusal rejects canned refusal phrasing.
func NoRefusal() Validator {
	return Validator{
		Name: "noRefusal",
		Check: func(output string) error {
			lower := strings.ToLower(output)
			for _, phrase := range refusalPhrases {
				if strings.Contains(lower, phrase) {
					return fmt.Errorf("output contains a refusal: %q", phrase)
				}
			}
			return nil
		},
	}
}

// MinLength rejects output shorter than n characters after trimming.
func MinLength(n int) Validator {
	return Validator{
		Name: "minLength",
		Check: func(output string) error {
			if got := len(strings.TrimSpace(output)); got < n {
				return fmt.Errorf("output is %d characters, need at least %d", got, n)
			}
			return nil
		},
	}
}

// IsStructured rejects output that is not a well-formed JSON document.
func IsStructured() Validator {
	return Validator{
		Name: "isStructured",
		Check: func(output string) error {
			if !gjson.Valid(strings.TrimSpace(output)) {
				return fmt.Errorf("output is not valid JSON")
			}
			return nil
		},
	}
}

// ValidatingDispatcher wraps a dispatcher and re-dispatches when a
// successful result fails validation, feeding the aggregated rejection
// reasons back as corrective context. A result still failing validation
// after the retries are spent is returned with status partial and the
// reasons in its error field; success is never fabricated and failures from
// the wrapped dispatcher pass through untouched.
type ValidatingDispatcher struct {
	next           executor.Dispatcher
	validators     []Validator
	maxRetries     int
	initialBackoff time.Duration
}

var (
	// WithValidationRetries caps re-dispatches triggered by validation.
	WithValidationRetries = opts.ForName[ValidatingDispatcher, int]("maxRetries")
	// WithValidationBackoff sets the sleep before each validation retry.
	WithValidationBackoff = opts.ForName[ValidatingDispatcher, time.Duration]("initialBackoff")
)

// WithValidators appends validators run against every successful output.
func WithValidators(v Validator, extra ...Validator) opts.Option[ValidatingDispatcher] {
	return opts.Type[ValidatingDispatcher](func(d *ValidatingDispatcher) error {
		d.validators = append(d.validators, v)
		d.validators = append(d.validators, extra...)
		return nil
	})
}

// NewValidatingDispatcher wraps the given dispatcher. It panics on a nil
// dispatcher or misconfigured options.
func NewValidatingDispatcher(next executor.Dispatcher, options ...opts.Option[ValidatingDispatcher]) *ValidatingDispatcher {
	if next == nil {
		panic("recovery: validating dispatcher needs a dispatcher to wrap")
	}
	d := &ValidatingDispatcher{
		next:           next,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
	}
	if err := opts.Apply(d, options); err != nil {
		panic(err)
	}
	return d
}

// Name returns the wrapped dispatcher's name.
func (d *ValidatingDispatcher) Name() string {
	return d.next.Name()
}

// Execute dispatches and validates, retrying on validation failure. The
// returned result answers the dispatched message regardless of which
// re-dispatch produced it.
func (d *ValidatingDispatcher) Execute(ctx context.Context, msg messages.TaskMessage) messages.AgentResult {
	result := d.next.Execute(ctx, msg)

	var corrections []messages.ContextItem
	for attempt := 0; ; attempt++ {
		if result.Status != messages.StatusSuccess {
			return answering(msg, result)
		}

		reasons := d.reject(result.Output)
		if reasons == "" {
			return answering(msg, result)
		}
		if attempt >= d.maxRetries {
			result.Status = messages.StatusPartial
			result.Error = reasons
			return answering(msg, result)
		}

		slog.Debug("output failed validation, retrying",
			slogx.Specialist(d.next.Name()),
			slogx.TraceID(msg.TraceID),
			slog.String("reasons", reasons))

		corrections = append(corrections, messages.RetryContext(
			"Your previous answer was rejected: "+reasons+". Produce a corrected answer."))
		if err := sleepCtx(ctx, d.initialBackoff); err != nil {
			return answering(msg, result)
		}
		result = d.next.Execute(ctx, msg.Derive(corrections...))
	}
}

// reject runs every validator and aggregates the failures, empty when the
// output passed.
func (d *ValidatingDispatcher) reject(output string) string {
	var reasons []string
	for _, v := range d.validators {
		if err := v.Check(output); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %s", v.Name, err))
		}
	}
	return strings.Join(reasons, "; ")
}
