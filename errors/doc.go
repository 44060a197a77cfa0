// Package errors provides standardized error handling for zoneagent.
//
// # Classification
//
// Errors fall into three classes that drive handling decisions:
//
//   - Transient: zone connection problems and timeouts (retry recommended)
//   - Invalid: a single bad record, mapping or delivery (log, count, continue)
//   - Fatal: configuration problems and unrecoverable sources (stop)
//
// # Failure kinds
//
// On top of the classes every runtime error carries one failure kind:
//
//	ErrConfiguration  missing setting, unknown factory, unpopulated context
//	ErrConnection     zone connect/assign/provision failure
//	ErrMapping        mapping resolution failure (processing continues unmapped)
//	ErrProcessing     one record could not be retrieved or handled
//	ErrDelivery       one event could not be sent to one zone
//
// Build them with the matching helper so the class and kind agree:
//
//	if err := t.Connect(ctx, zone); err != nil {
//	    return errors.WrapConnection(err, "Orchestrator", "Start", "zone connect")
//	}
//
// and check with the standard library:
//
//	if stderrors.Is(err, errors.ErrConnection) { ... }
//
// # Wrapping Pattern
//
// All wrapping follows "component.method: action failed: %w", which keeps log
// lines greppable by component and method.
package errors
