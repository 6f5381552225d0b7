// Package transfer groups the stateful upload protocols.
// Stateless single-request transfers live in the backends themselves.
package transfer
