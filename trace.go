//go:build hoard.trace

package hoard

// trace enables the Fprintf diagnostic path in Malloc/Free/Realloc/Calloc
// below. It is a build-time constant so the disabled case costs nothing:
// the compiler dead-code-eliminates every `if trace` block when this file
// is not part of the build.
const trace = true
