// Package pool provides memory management optimizations.
// This includes buffer pooling used when draining response bodies.
package pool
