// Package artefact models stored portfolio artefacts: typed nodes in a
// parent tree, owned by a user, a group, or an institution, with per-role
// and per-user access grants for group-owned content.
package artefact
