// Package plugin defines the capability contract between the sandbox
// runner and integration code.
//
// Integrations are resolved through a registry keyed by domain name,
// decided at build time — never via runtime introspection. The resolution
// step returns an explicit failure enumeration (integration_not_found,
// missing_dependency, import_error, invalid_integration), so the runner
// never classifies setup failures from error text.
//
// Each domain may ship a manifest (manifest.yaml under the plugin
// directory) declaring its display name, the platforms it forwards
// entities to, and the supporting modules it requires.
//
// During setup an integration receives a Host handle exposing the network
// proxy, coordinator construction, entity registration, and state updates.
package plugin
