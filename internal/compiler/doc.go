// Package compiler turns declarative report definitions into live model and
// view graphs.
//
// A definition lists base models (tables, fields, references) and reports
// (grouping or union views over models and other reports). Definitions are
// written in CUE or YAML and decode into the same Go structs:
//
//	models: [{
//	    name:  "invoice"
//	    table: "invoice"
//	    fields: [{name: "name"}, {name: "amount", type: "money"}]
//	    references: [{field: "client_id", model: "client", title: true}]
//	}]
//	reports: [{
//	    name: "transactions"
//	    kind: "union"
//	    branches: [
//	        {source: "invoice", mapping: {amount: "-[]"}},
//	        {source: "payment"},
//	    ]
//	    fields: [{name: "name"}, {name: "amount", type: "money"}]
//	}]
//
// Validate reports every problem it finds with an E2xx code. A Catalog
// builds a fresh, independent object graph on every call, so callers may
// configure the result (extra conditions, ordering) without affecting
// later builds.
package compiler
