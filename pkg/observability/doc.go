/*
Package observability exposes node lifecycle metrics.

Metrics are registered on a private Prometheus registry and fed through the
domain.LifecycleHooks returned by Metrics.Hooks, so the spawner does not
depend on Prometheus directly.
*/
package observability
