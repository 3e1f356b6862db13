// Package expression renders audit message templates and evaluates gating
// conditions against the variables of a logged invocation.
//
// # Templates
//
// A template is literal text with embedded expressions between {{ and }}.
// Everything outside the delimiters is copied verbatim, including $, /, #
// and single braces:
//
//	修改了订单{{ order.orderNo }}，价格{{ price }}$
//
// # Expressions
//
//   - Variables: {{ order }}, {{ _ret }}, {{ _errorMsg }}
//   - Member access: {{ order.creator.userName }}
//   - Null-safe member access: {{ order?.creator?.userName }}
//   - Indexing: {{ items[0] }}, {{ order["orderNo"] }}
//   - Formatter calls: {{ ORDER(order.orderId) }}, {{ upper(name) }}
//   - Literals: 'single', "double", 42, 1.5, true, false, null, nil
//   - Operators: == != < <= > >= ! && || and unary minus, with parentheses
//
// Values render with formatter.Display; nil renders as the empty string.
//
// # Conditions
//
// A condition is a single boolean expression, written bare (order.amount > 0)
// or as exactly one {{ }} segment. A condition whose result is not a bool is
// an error.
//
// # Errors
//
// Malformed syntax and unknown formatter names are reported by Compile as
// *ParseError. References that cannot be resolved at render time produce
// *UnresolvedReferenceError naming the full path, unless the root name was
// declared optional with WithOptional.
package expression
