// Package intake runs the submission lifecycle behind a shidduch profile
// portal: rows are created by an external form tool and this service claims,
// reads, edits, and soft deletes them.
//
// Token lifecycle:
//   - Every row starts with three opaque tokens. The claim token is single
//     use and is cleared atomically the moment an authenticated account claims
//     the row; the manage and delete tokens are durable capability links that
//     survive for the life of the submission.
//   - Deletes are soft. The row keeps its tokens so stale links resolve to an
//     explicit "deleted" answer instead of a generic miss.
//
// Notifications:
//   - Notifier is a light-weight webhook emitter used after claims, edits,
//     deletes, and photo updates. Deliveries run best-effort (errors are
//     logged) except for manage link emails, where the caller needs to know
//     delivery failed.
//
// The HTTP surface lives in IntakeController; wiring happens in cmd/server.
package intake
