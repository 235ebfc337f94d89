// Package ir provides the record and expression types evaluated by dyneval.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Records are immutable once built; every With* helper returns a copy
//   - Expression nodes are comparable structs so == is structural equality
//   - The invalid sentinel is identified by pointer, never by content
//   - All canonical keys use snake_case
package ir
