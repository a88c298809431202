// Package evaluator implements the deterministic gate between the LLM and
// the rest of the call pipeline. Nothing the model returns is acted on
// until every check here passes: schema validity, state-invariant,
// required fields, and payment-promise validity.
package evaluator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voicecollect/callcore/conversation"
	"github.com/voicecollect/callcore/types"
)

// Rule identifies which deterministic check rejected a turn result.
type Rule string

const (
	// RuleSchema rejects output that does not parse into the expected shape.
	RuleSchema Rule = "schema"
	// RuleTransition rejects proposed states that are not a legal edge.
	RuleTransition Rule = "transition"
	// RuleRequiredFields rejects closing turns missing mandatory fields.
	RuleRequiredFields Rule = "required_fields"
	// RulePromise rejects invalid payment promises.
	RulePromise Rule = "promise"
)

// EvaluationError names the failed rule. The orchestrator treats all
// evaluation failures identically; the rule and reason are appended to
// the re-prompt context.
type EvaluationError struct {
	Rule   Rule
	Reason string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed [%s]: %s", e.Rule, e.Reason)
}

// turnResultSchema is the JSON schema every raw LLM turn must satisfy
// before it is decoded. Enum memberships and the promise shape are
// enforced here; cross-field rules are enforced after decoding.
var turnResultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"next_state": map[string]any{
			"type": "string",
			"enum": []any{
				"greeting", "verification", "purpose", "negotiation",
				"commitment", "closing", "wrong_number",
				"hardship_callback", "terminated",
			},
		},
		"outcome": map[string]any{
			"type": "string",
			"enum": []any{
				"promised_to_pay", "partial_promise", "disputed",
				"hardship", "wrong_number", "callback_requested",
				"refused_to_pay", "hung_up", "no_answer",
				"voicemail_left", "other", "",
			},
		},
		"promise": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"amount_cents": map[string]any{"type": "integer"},
				"due_date":     map[string]any{"type": "string"},
			},
			"required": []any{"amount_cents", "due_date"},
		},
		"sentiment":          map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
		"identity_confirmed": map[string]any{"type": "boolean"},
		"requested_no_calls": map[string]any{"type": "boolean"},
		"hardship_reason":    map[string]any{"type": "string", "maxLength": 500},
		"dispute_reason":     map[string]any{"type": "string", "maxLength": 500},
		"summary":            map[string]any{"type": "string", "maxLength": 500},
		"reply":              map[string]any{"type": "string"},
	},
	"required": []any{"next_state", "sentiment", "reply"},
}

// Evaluator validates raw LLM turn output against the deterministic rules.
// It is stateless and safe for concurrent use across sessions.
type Evaluator struct {
	schema *gojsonschema.Schema
}

// New compiles the turn result schema and returns an Evaluator.
func New() (*Evaluator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(turnResultSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling turn result schema: %w", err)
	}
	return &Evaluator{schema: schema}, nil
}

// Evaluate runs every check against the raw turn JSON. On success it
// returns the decoded TurnResult; on failure it returns a typed
// *EvaluationError naming the first failed rule. The proposed state is
// checked against the machine's current state but never applied here.
// identityConfirmed is the session's accumulated verification flag,
// consulted when the result proposes closing.
func (e *Evaluator) Evaluate(raw []byte, machine *conversation.Machine, callDate time.Time, identityConfirmed bool) (*types.TurnResult, error) {
	result, err := e.checkSchema(raw)
	if err != nil {
		return nil, err
	}

	if err := e.checkTransition(result, machine); err != nil {
		return nil, err
	}
	if err := e.checkRequiredFields(result, identityConfirmed); err != nil {
		return nil, err
	}
	if err := e.checkPromise(result, callDate); err != nil {
		return nil, err
	}

	return result, nil
}

// checkSchema validates the raw JSON shape and decodes it.
func (e *Evaluator) checkSchema(raw []byte) (*types.TurnResult, error) {
	valResult, err := e.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &EvaluationError{
			Rule:   RuleSchema,
			Reason: fmt.Sprintf("output is not valid JSON: %v", err),
		}
	}
	if !valResult.Valid() {
		reason := "schema violation"
		if errs := valResult.Errors(); len(errs) > 0 {
			reason = errs[0].String()
		}
		return nil, &EvaluationError{Rule: RuleSchema, Reason: reason}
	}

	var decoded rawTurn
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &EvaluationError{
			Rule:   RuleSchema,
			Reason: fmt.Sprintf("decode: %v", err),
		}
	}

	return decoded.toTurnResult()
}

// checkTransition enforces the state allow-list without applying anything.
func (e *Evaluator) checkTransition(result *types.TurnResult, machine *conversation.Machine) error {
	if err := machine.Propose(result.NextState); err != nil {
		return &EvaluationError{
			Rule:   RuleTransition,
			Reason: err.Error(),
		}
	}
	return nil
}

// checkRequiredFields enforces fields that must be present by closing.
func (e *Evaluator) checkRequiredFields(result *types.TurnResult, identityConfirmed bool) error {
	if result.NextState != types.StateClosing {
		return nil
	}
	if result.Outcome == "" {
		return &EvaluationError{
			Rule:   RuleRequiredFields,
			Reason: "outcome classification required by closing",
		}
	}
	if !result.Outcome.Valid() {
		return &EvaluationError{
			Rule:   RuleRequiredFields,
			Reason: fmt.Sprintf("unknown outcome %q", result.Outcome),
		}
	}
	if !identityConfirmed && !result.IdentityConfirmed {
		return &EvaluationError{
			Rule:   RuleRequiredFields,
			Reason: "debtor identity not confirmed by closing",
		}
	}
	return nil
}

// checkPromise validates any attached payment promise. A violating
// promise rejects the whole turn result, not just the promise field.
func (e *Evaluator) checkPromise(result *types.TurnResult, callDate time.Time) error {
	if result.Promise == nil {
		return nil
	}
	if result.Promise.AmountCents <= 0 {
		return &EvaluationError{
			Rule:   RulePromise,
			Reason: fmt.Sprintf("promise amount must be positive, got %d cents", result.Promise.AmountCents),
		}
	}
	day := callDate.Truncate(24 * time.Hour)
	if !result.Promise.DueDate.After(day) {
		return &EvaluationError{
			Rule: RulePromise,
			Reason: fmt.Sprintf("promise date %s is not after call date %s",
				result.Promise.DueDate.Format("2006-01-02"), day.Format("2006-01-02")),
		}
	}
	return nil
}

// rawTurn mirrors the wire shape of an LLM turn response.
type rawTurn struct {
	NextState         string      `json:"next_state"`
	Outcome           string      `json:"outcome"`
	Promise           *rawPromise `json:"promise"`
	Sentiment         int         `json:"sentiment"`
	IdentityConfirmed bool        `json:"identity_confirmed"`
	RequestedNoCalls  bool        `json:"requested_no_calls"`
	HardshipReason    string      `json:"hardship_reason"`
	DisputeReason     string      `json:"dispute_reason"`
	Summary           string      `json:"summary"`
	Reply             string      `json:"reply"`
}

type rawPromise struct {
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
}

// toTurnResult converts the wire shape into the domain type, parsing the
// promise date. Date parse failures are schema failures: the shape was
// right but the value is unusable.
func (r *rawTurn) toTurnResult() (*types.TurnResult, error) {
	result := &types.TurnResult{
		NextState:         types.ConversationState(r.NextState),
		Outcome:           types.CallOutcome(r.Outcome),
		Sentiment:         types.Sentiment(r.Sentiment),
		IdentityConfirmed: r.IdentityConfirmed,
		RequestedNoCalls:  r.RequestedNoCalls,
		HardshipReason:    r.HardshipReason,
		DisputeReason:     r.DisputeReason,
		Summary:           r.Summary,
		Reply:             r.Reply,
	}

	if r.Promise != nil {
		due, err := time.Parse("2006-01-02", r.Promise.DueDate)
		if err != nil {
			return nil, &EvaluationError{
				Rule:   RuleSchema,
				Reason: fmt.Sprintf("promise due_date %q is not YYYY-MM-DD", r.Promise.DueDate),
			}
		}
		result.Promise = &types.PaymentPromise{
			AmountCents: r.Promise.AmountCents,
			DueDate:     due,
		}
	}

	return result, nil
}
