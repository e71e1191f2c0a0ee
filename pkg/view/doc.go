// Package view models pages, collections and export archives, and
// installs the special per-user views (profile, dashboard) from system
// templates when missing.
package view
