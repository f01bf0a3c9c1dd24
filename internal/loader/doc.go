// Package loader turns a build request into a usable engine directory.
// It is structured into small files by concern:
//
//   - request.go: BuildRequest, HardwareProfile, collaborator interfaces.
//   - resolve.go: configuration arbitration wiring (claims per feature).
//   - steps.go: build pipeline assembly per model format.
//   - loader.go: Loader, cache lookup, storage policy, build execution.
//   - plan.go: dry-run resolution and cache outlook.
//   - service.go: the status/cache surface consumed by httpapi.
//
// The flow is: resolve configuration -> fingerprint it -> check the cache
// -> on miss, run the build pipeline under a write guard and publish the
// slot. Fatal configuration conflicts and format-inference failures
// surface before any build step runs; storage insufficiency and dropped
// performance claims only degrade the attempt.
package loader
