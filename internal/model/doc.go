// Package model provides the table-backed base model that report views
// compose.
//
// A Model owns an ordered set of immutable field descriptors, a list of
// conditions, and ordering/limit settings. It never executes anything: every
// operation returns a queryir statement for a renderer and executor to run.
//
// FIELDS:
//
// A field is either a physical column (optionally stored under a different
// actual name), an expression template evaluated against the model's other
// fields, or a prebuilt computed expression such as a reference title:
//
//	m := model.New("invoice")
//	m.AddField("name")
//	m.AddField("amount", model.WithType(model.TypeMoney))
//	m.HasOne("client_id", client).AddTitle()
//	m.AddExpression("type", "'invoice'")
//
// Descriptors are values. Redefining a field replaces its descriptor in place
// and keeps its position in the field order.
package model
