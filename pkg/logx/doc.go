// Package logx configures castbot's structured logging.
//
// A thin Logger value wraps zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is JSON, one event per line
//   - an optional Telegram sink forwards warnings to an ops chat, rate limited
//
// Loggers derived from a Service follow Service.Apply, so a config reload
// changes level and sinks without rebuilding components.
package logx
