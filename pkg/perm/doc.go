// Package perm is the permission evaluator: it composes identity records,
// group roles and ownership data to answer can-view, can-edit, can-publish
// and can-moderate questions for artefacts, views, collections and export
// archives.
//
// All predicates are pure boolean queries. Absence of permission is a
// normal false result; errors are reserved for storage failure and
// malformed input.
package perm
