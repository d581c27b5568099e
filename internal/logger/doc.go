// Package logger wraps zap to provide a global sugared logger with a console
// encoder, level parsing, and context helpers (ToContext/FromContext/WithName/
// WithKV) so that every operation logs through the logger carried by its
// context.
package logger
