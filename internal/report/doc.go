// Package report implements read-only views that compose queries over
// other sources.
//
// GroupView re-expresses one source with GROUP BY and aggregate fields.
// UnionView concatenates several sources with UNION ALL, mapping each
// view field to a branch-local expression. Both implement Source, so a
// union may contain grouped views or other unions at any depth.
//
// ARCHITECTURE:
//
//	[model.Model / views] → Select/Count/FieldQuery/Fx → [queryir tree] → [querysql] → [store]
//
// Views never execute anything. Building a statement is a pure function of
// the view's configuration and can be repeated freely.
//
// CONDITION ROUTING:
//
// A condition goes to HAVING when the statement it lands on is grouped or
// when it names an aggregate field (or an expression over one). Otherwise
// it goes to WHERE. On a UnionView, conditions on fields the view owns are
// applied on top of the union; conditions on other fields are pushed into
// the branches that have them, through the branch mapping.
//
// ACTIONS:
//
// Action("select"|"count"|"field"|"fx", args...) mirrors the typed methods.
// "insert", "update" and "delete" fail with ErrCodeUnsupportedAction.
package report
