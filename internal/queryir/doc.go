// Package queryir provides the composite expression tree that report views
// build and hand to a renderer.
//
// A composite expression is an opaque, renderable tree: statements, unions,
// derived tables, templates with substituted argument slots, column
// references, bound parameters and literals. Any node can appear as an
// argument of a larger node, so a UNION ALL of grouped statements can itself
// become the table source of another statement.
//
// ARCHITECTURE:
//
//	[model / report views] → [queryir tree] → [querysql renderer] → SQL + params
//
// The tree carries no dialect knowledge. Quoting and placeholder style belong
// to the renderer.
//
// SEALED INTERFACES:
//
// Expr and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, which lets renderers use
// exhaustive type switches:
//
//	switch e := expr.(type) {
//	case *Query:
//	    // nested statement
//	case Template:
//	    // substituted template
//	default:
//	    // leaf
//	}
//
// TEMPLATES:
//
// Expression templates use square brackets for expression slots and braces
// for identifiers:
//
//	sum([])          aggregate over the next positional argument
//	-[]              negate a branch field
//	[s]+[amount]     combine two named fields
//	sum({})          identifier supplied positionally
//
// Parse resolves every placeholder up front, so a Template is immutable
// and renders deterministically.
package queryir
