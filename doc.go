// Package formguard provides:
//
// - A dynamic field registry: fields attach themselves to a shared Record on demand
// - Sync and async validation with a stable error model via Issues (JSON Pointer, code, message)
// - Supersede-on-change async checks (the latest value always wins)
// - A submission gate that waits, bounded, for in-flight checks before reporting validity
//
// Design policy:
// - The root package holds the core: the Record registry, Field state machine, Issues and the Gate.
// - Sync rules live under rules/, the availability adapter under availability/, HTTP gating under middleware/,
//   declarative forms under formspec/, and the CLI under cmd/formguard.
// - internal/ keeps only process plumbing (logger, config, jsonbody, server) that is not part of the API.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	rec := formguard.NewRecord()
//	defer rec.Close()
//
//	user := rec.RegisterSpec(formguard.FieldSpec{
//	    Name:  "username",
//	    Rules: []formguard.SyncRule{rules.Required(), rules.MinLength(6)},
//	    Async: []formguard.AsyncRule{availability.Rule(client.CheckFunc(remote.KindUsername), false)},
//	})
//	user.SetValue("sixlong")
//
//	if !formguard.ValidateFields(ctx, rec, "username") {
//	    // render the per-field issues
//	}
package formguard
