// Package compiler turns CUE record definitions into ir.Record values.
//
// Records are declared under a top-level "record" struct:
//
//	record: heart: {
//		kind: "RANGED_VALUE"
//		ranged: {min: 0, max: 200, dynamic: {platform: "heart_rate_bpm"}}
//		short_text: {text: "--", dynamic: {format: {platform: "heart_rate_bpm"}}}
//		placeholder: {kind: "SHORT_TEXT", short_text: "..."}
//	}
//
// Float expressions are one of {const: n}, {state: "key"},
// {platform: "key"}, {time: "second"|"minute"|"hour"} or
// {op: "add"|"sub"|"mul"|"div", left: F, right: F}; a bare number is a
// constant. String expressions are one of {const: "s"}, {state: "key"},
// {concat: [S, ...]} or {format: F, min_fraction_digits: n,
// max_fraction_digits: n}; a bare string is a constant.
//
// Compile errors carry CUE source positions. Validate reports structural
// problems that CUE itself cannot see.
package compiler
