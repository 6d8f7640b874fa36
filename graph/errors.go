package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrValidation matches every error of kind KindValidation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches every error of kind KindNotFound.
	ErrNotFound = errors.New("not found")

	// ErrLoad matches every error of kind KindLoad.
	ErrLoad = errors.New("load failed")

	// ErrDuplicateID indicates a node id that is already taken by another node.
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrDuplicateEdgeID indicates an edge id that is already taken.
	ErrDuplicateEdgeID = errors.New("duplicate edge id")

	// ErrUnknownNodeType indicates a semantic node type outside the closed set.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrUnknownEdgeType indicates an edge type outside the closed set.
	ErrUnknownEdgeType = errors.New("unknown edge type")

	// ErrMissingEndpoint indicates an edge whose source or target does not exist.
	ErrMissingEndpoint = errors.New("edge endpoint does not exist")

	// ErrSelfLoop indicates an edge whose source and target are the same node.
	ErrSelfLoop = errors.New("self-loop edge")

	// ErrMissingMember indicates a community member that is not a semantic node.
	ErrMissingMember = errors.New("community member is not a semantic node")

	// ErrInvalidArgument indicates a malformed argument such as an empty id
	// or a negative hop count.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidText indicates a string field or attribute that is not valid
	// UTF-8. It also matches ErrInvalidArgument.
	ErrInvalidText = fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidArgument)
)

// Error kinds categorize errors by their type.
const (
	// KindValidation covers rejected mutations and malformed arguments.
	KindValidation = "validation"

	// KindNotFound covers lookups and traversals from absent nodes.
	KindNotFound = "not_found"

	// KindLoad covers malformed or partially-typed persisted documents.
	KindLoad = "load"
)

// Invariant names reported in the error context.
const (
	InvariantUniqueID      = "unique_node_id"
	InvariantEndpoints     = "edge_endpoints_exist"
	InvariantClosedTypes   = "closed_type_enumeration"
	InvariantNoSelfLoop    = "no_self_loop"
	InvariantUniqueEdgeID  = "unique_edge_id"
	InvariantMemberIsNode  = "community_members_exist"
	InvariantWellFormedArg = "well_formed_argument"
)

// Error is a structured error that wraps an underlying cause with the
// operation that failed and the category of the failure.
//
// Error supports errors.Is against both the kind sentinels (ErrValidation,
// ErrNotFound, ErrLoad) and the wrapped cause:
//
//	_, err := store.AddEdge(e)
//	if errors.Is(err, graph.ErrValidation) && errors.Is(err, graph.ErrSelfLoop) {
//	    ...
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Store.AddEdge").
	Op string

	// Kind categorizes the error (KindValidation, KindNotFound, KindLoad).
	Kind string

	// Err is the underlying cause.
	Err error

	// Context carries ids, the violated invariant and similar details.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("contextgraph: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("contextgraph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("contextgraph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, other *Error values with the same kind, and
// anything the cause matches.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrValidation:
		if e.Kind == KindValidation {
			return true
		}
	case ErrNotFound:
		if e.Kind == KindNotFound {
			return true
		}
	case ErrLoad:
		if e.Kind == KindLoad {
			return true
		}
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op) {
			return true
		}
	}
	return errors.Is(e.Err, target)
}

// Invariant returns the invariant recorded in the error context, if any.
func (e *Error) Invariant() string {
	if e.Context == nil {
		return ""
	}
	s, _ := e.Context["invariant"].(string)
	return s
}

// NewValidationError creates an Error of kind KindValidation.
func NewValidationError(op string, err error, ctx map[string]any) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err, Context: ctx}
}

// NewNotFoundError creates an Error of kind KindNotFound.
func NewNotFoundError(op string, err error, ctx map[string]any) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err, Context: ctx}
}

// NewLoadError creates an Error of kind KindLoad.
func NewLoadError(op string, err error, ctx map[string]any) *Error {
	return &Error{Op: op, Kind: KindLoad, Err: err, Context: ctx}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsLoad reports whether err is a load error.
func IsLoad(err error) bool { return errors.Is(err, ErrLoad) }

func violation(op string, cause error, invariant string, kv ...any) *Error {
	ctx := map[string]any{"invariant": invariant}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			ctx[k] = kv[i+1]
		}
	}
	return NewValidationError(op, cause, ctx)
}

// attrViolation reports a failed Attributes.Validate, keeping ErrInvalidText
// as the cause when the bag held malformed text.
func attrViolation(op string, err error, kv ...any) *Error {
	cause := ErrInvalidArgument
	if errors.Is(err, ErrInvalidText) {
		cause = ErrInvalidText
	}
	return violation(op, cause, InvariantWellFormedArg, append(kv, "detail", err.Error())...)
}
