// Package binder decodes HTTP requests into typed request structs.
//
// JSON decodes a size-limited body strictly, rejecting unknown fields and
// trailing data. Path and Query fill fields tagged `path:"name"` and
// `query:"name"` from chi route parameters and the URL query.
package binder
