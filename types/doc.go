// Package types provides the core data model shared across parley.
// This package has ZERO dependencies on other parley packages to avoid
// circular imports. All other packages should import types from here.
package types
