// Package infra holds the adapters behind the core interfaces: the
// EskomSePush HTTP client, the Paho MQTT publisher, the SQLite schedule
// cache, metrics sinks, Sentry and the zerolog logger.
package infra
